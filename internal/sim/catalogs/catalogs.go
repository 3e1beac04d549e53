package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InsideSize is the half extent of parts that sit inside a frame.
const InsideSize = 1 - 0.09375*2

type Catalogs struct {
	Materials MaterialCatalog
	Parts     PartCatalog
}

type MaterialCatalog struct {
	Defs   map[string]MaterialDef
	Digest string
}

type MaterialDef struct {
	ID          string  `json:"id"`
	Friction    float64 `json:"friction"`
	Restitution float64 `json:"restitution"`
}

type PartCatalog struct {
	Defs   map[string]PartDef
	Digest string
}

type PartDef struct {
	ID          string             `json:"id"`
	Box         [2]float64         `json:"box,omitempty"`
	Radius      float64            `json:"radius,omitempty"`
	Density     float64            `json:"density"`
	Friction    float64            `json:"friction,omitempty"`
	Restitution float64            `json:"restitution,omitempty"`
	Params      map[string]float64 `json:"params,omitempty"`
}

// Param returns a numeric parameter or def when unset.
func (p PartDef) Param(name string, def float64) float64 {
	if v, ok := p.Params[name]; ok {
		return v
	}
	return def
}

var DefaultMaterials = []MaterialDef{
	{ID: "dirt", Friction: 2, Restitution: 0.05},
	{ID: "stone", Friction: 1, Restitution: 0.3},
	{ID: "ice", Friction: 0, Restitution: 0.1},
	{ID: "slime", Friction: 2, Restitution: 1},
}

var DefaultParts = []PartDef{
	{ID: "frame", Box: [2]float64{1, 1}, Density: 1},
	{ID: "wheel", Radius: 1, Density: 1, Friction: 1, Params: map[string]float64{"torque": 40}},
	{ID: "balloon", Radius: 1, Density: 0.1, Params: map[string]float64{"lift": 15}},
	{ID: "controller", Box: [2]float64{InsideSize, InsideSize}, Density: 1},
	{ID: "puncher", Box: [2]float64{InsideSize, InsideSize}, Density: 1, Params: map[string]float64{"impulse": 30}},
	{ID: "propeller", Box: [2]float64{InsideSize, 0.25}, Density: 1, Params: map[string]float64{"thrust": 20}},
	{ID: "tnt", Box: [2]float64{InsideSize, InsideSize}, Density: 1, Params: map[string]float64{"strength": 3, "fuse_ticks": 40}},
	{ID: "rotator", Box: [2]float64{InsideSize, InsideSize}, Density: 1, Params: map[string]float64{"impulse": 2}},
	{ID: "cannon", Box: [2]float64{InsideSize, 0.5}, Density: 1, Params: map[string]float64{"speed": 30}},
	{ID: "bullet", Radius: 0.2, Density: 2, Params: map[string]float64{"lifetime_ticks": 100}},
	{ID: "position_sensor", Box: [2]float64{0.5, 0.5}, Density: 1},
	{ID: "math_unit", Box: [2]float64{InsideSize, InsideSize}, Density: 1},
}

// Load reads materials.json and parts.json from configDir. A missing file falls
// back to the built-in defaults; an empty configDir uses defaults only.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadMaterials(filepath.Join(configDir, "materials.json"), configDir == "", &c.Materials); err != nil {
		return nil, err
	}
	if err := loadParts(filepath.Join(configDir, "parts.json"), configDir == "", &c.Parts); err != nil {
		return nil, err
	}
	return &c, nil
}

// Defaults is Load without any config directory.
func Defaults() *Catalogs {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readOrDefault(path string, skip bool, def any) ([]byte, error) {
	if !skip {
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return json.Marshal(def)
}

func loadMaterials(path string, skip bool, out *MaterialCatalog) error {
	raw, err := readOrDefault(path, skip, DefaultMaterials)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MaterialDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("materials.json: %w", err)
	}
	out.Defs = map[string]MaterialDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("materials.json: empty id")
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadParts(path string, skip bool, out *PartCatalog) error {
	raw, err := readOrDefault(path, skip, DefaultParts)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PartDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("parts.json: %w", err)
	}
	out.Defs = map[string]PartDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("parts.json: empty id")
		}
		if d.Radius <= 0 && (d.Box[0] <= 0 || d.Box[1] <= 0) {
			return fmt.Errorf("parts.json: %s: needs box or radius", d.ID)
		}
		if d.Density <= 0 {
			return fmt.Errorf("parts.json: %s: density must be positive", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

// PartIDs returns part ids in sorted order.
func (c PartCatalog) PartIDs() []string {
	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
