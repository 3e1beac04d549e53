package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "tick_rate_hz: 30\ngravity: [0, -20]\npinch:\n  max_force: 500\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 30 || tu.Gravity[1] != -20 || tu.Pinch.MaxForce != 500 {
		t.Fatalf("overrides lost: %+v", tu)
	}
	if tu.Substeps != 10 || tu.Discovery.Port != 4321 || tu.Pinch.RotateImpulse != 5 {
		t.Fatalf("defaults missing: %+v", tu)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoad_ShippedFileMatchesDefaults(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu != Default() {
		t.Fatalf("configs/tuning.yaml drifted from the defaults:\n%+v\n%+v", tu, Default())
	}
}

func TestDigest_IgnoresOmittedDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("# comment only\ntick_rate_hz: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if tu.Digest() != Default().Digest() || len(tu.Digest()) != 64 {
		t.Fatalf("digest %q vs %q", tu.Digest(), Default().Digest())
	}
	tu.Substeps = 4
	if tu.Digest() == Default().Digest() {
		t.Fatalf("a changed value must change the digest")
	}
}
