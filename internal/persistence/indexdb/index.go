// Package indexdb keeps a queryable read-model of what the server wrote: saves,
// per-tick stats and the catalogs in use. Save files and tick logs stay the
// source of truth; every write here is best-effort and never blocks a tick.
package indexdb

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"

	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/tuning"
)

// Digest is the content hash recorded for save files.
func Digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SaveRow describes one written save file.
type SaveRow struct {
	Tick           uint64 `json:"tick"`
	WorldID        string `json:"world_id"`
	Path           string `json:"path"`
	Bytes          int    `json:"bytes"`
	Digest         string `json:"digest"`
	Objects        int    `json:"objects"`
	Vehicles       int    `json:"vehicles"`
	Joints         int    `json:"joints"`
	TerrainRegions int    `json:"terrain_regions"`
	RecordedAt     string `json:"recorded_at"`
}

// NewSaveRow summarizes sf as written to path with the given compressed contents.
func NewSaveRow(path string, sf savefile.SaveFile, contents []byte) SaveRow {
	return SaveRow{
		Tick:           sf.Header.Tick,
		WorldID:        sf.Header.WorldID,
		Path:           path,
		Bytes:          len(contents),
		Digest:         Digest(contents),
		Objects:        len(sf.Objects),
		Vehicles:       len(sf.Vehicles),
		Joints:         len(sf.Joints),
		TerrainRegions: len(sf.Terrain),
		RecordedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

type catalogRow struct {
	Name   string
	Digest string
	JSON   []byte
}

// catalogRows collects the raw catalog files (when present) and the tuning values
// actually applied.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	read := func(name, file, digest string) {
		if configDir == "" || digest == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil || len(b) == 0 {
			return
		}
		rows = append(rows, catalogRow{Name: name, Digest: digest, JSON: b})
	}
	if cats != nil {
		read("materials", "materials.json", cats.Materials.Digest)
		read("parts", "parts.json", cats.Parts.Digest)
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, catalogRow{Name: "tuning", Digest: Digest(b), JSON: b})
	}
	return rows
}
