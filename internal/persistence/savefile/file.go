package savefile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Ext = ".sbs.zst"

// Path names the save written at tick inside dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%012d%s", tick, Ext))
}

// Marshal returns the compressed file contents.
func Marshal(sf SaveFile) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := Encode(enc, sf); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes contents produced by Marshal.
func Unmarshal(b []byte) (SaveFile, error) {
	dec, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return SaveFile{}, err
	}
	defer dec.Close()
	return Decode(dec)
}

// Write stores the save at path through a temp file and rename, so a failed write
// never clobbers the previous save.
func Write(path string, sf SaveFile) error {
	b, err := Marshal(sf)
	if err != nil {
		return err
	}
	return WriteBytes(path, b)
}

func WriteBytes(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func Read(path string) (SaveFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SaveFile{}, err
	}
	sf, err := Unmarshal(b)
	if err != nil {
		return sf, fmt.Errorf("%s: %w", path, err)
	}
	return sf, nil
}

// Latest returns the newest save in dir by name, or "" when there is none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
