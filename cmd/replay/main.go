package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"scrapbox.gg/internal/persistence/indexdb"
	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics/box2d"
	"scrapbox.gg/internal/sim/tuning"
	"scrapbox.gg/internal/sim/world"
)

// replay loads a save, advances it headless and prints a digest of the
// resulting state. With -runs > 1 every run must land on the same digest.
func main() {
	var (
		savePath   = flag.String("save", "", "path to .sbs.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		ticks      = flag.Int("ticks", 200, "ticks to simulate")
		runs       = flag.Int("runs", 2, "independent runs to compare")
		outPath    = flag.String("out", "", "write the final state of the first run as a save (optional)")
	)
	flag.Parse()

	if *savePath == "" {
		fmt.Fprintln(os.Stderr, "missing -save")
		os.Exit(2)
	}

	sf, err := savefile.Read(*savePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read save:", err)
		os.Exit(1)
	}
	fmt.Printf("save v%d world=%s tick=%d objects=%d vehicles=%d joints=%d terrain_regions=%d\n",
		sf.Header.Version, sf.Header.WorldID, sf.Header.Tick,
		len(sf.Objects), len(sf.Vehicles), len(sf.Joints), len(sf.Terrain))

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Default()
	}
	cfg := world.ConfigFromTuning(sf.Header.WorldID, tune)
	cfg.SaveEveryTicks = 0

	var first string
	for i := 0; i < *runs; i++ {
		end, err := resimulate(cfg, cats, sf, *ticks)
		if err != nil {
			fmt.Fprintln(os.Stderr, "resimulate:", err)
			os.Exit(1)
		}
		digest, err := stateDigest(end)
		if err != nil {
			fmt.Fprintln(os.Stderr, "digest:", err)
			os.Exit(1)
		}
		fmt.Printf("run %d: tick=%d objects=%d digest=%s\n", i+1, end.Header.Tick, len(end.Objects), digest)
		if i == 0 {
			first = digest
			if *outPath != "" {
				if err := savefile.Write(*outPath, end); err != nil {
					fmt.Fprintln(os.Stderr, "write:", err)
					os.Exit(1)
				}
			}
			continue
		}
		if digest != first {
			fmt.Fprintf(os.Stderr, "run %d diverged: got=%s want=%s\n", i+1, digest, first)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: runs=%d ticks=%d\n", *runs, *ticks)
}

// resimulate loads sf into a fresh world and steps it without players.
func resimulate(cfg world.WorldConfig, cats *catalogs.Catalogs, sf savefile.SaveFile, ticks int) (savefile.SaveFile, error) {
	w, err := world.New(cfg, cats, box2d.New(cfg.Gravity))
	if err != nil {
		return savefile.SaveFile{}, err
	}
	if err := w.Load(sf); err != nil {
		return savefile.SaveFile{}, err
	}
	for i := 0; i < ticks; i++ {
		if err := w.StepOnce(); err != nil {
			return savefile.SaveFile{}, err
		}
	}
	return w.Dump(), nil
}

// stateDigest hashes the uncompressed encoding, which is stable for equal saves.
func stateDigest(sf savefile.SaveFile) (string, error) {
	var buf bytes.Buffer
	if err := savefile.Encode(&buf, sf); err != nil {
		return "", err
	}
	return indexdb.Digest(buf.Bytes()), nil
}
