package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/convex"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "ticks":
			ticksCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "pause":
			pauseCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional; lists its saves)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID, "saves")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

type ringReport struct {
	Region string `json:"region"`
	Index  int    `json:"index"`
	Hole   bool   `json:"hole"`
	Points int    `json:"points"`
	Status string `json:"status"`
}

type inspectReport struct {
	Path     string         `json:"path"`
	WorldID  string         `json:"world_id"`
	Version  int            `json:"version"`
	Tick     uint64         `json:"tick"`
	Objects  map[string]int `json:"objects"`
	Joints   int            `json:"joints"`
	Vehicles int            `json:"vehicles"`
	Regions  map[string]int `json:"regions"`
	Invalid  []ringReport   `json:"invalid,omitempty"`
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when -save is empty)")
	savePath := fs.String("save", "", "save file path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*savePath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -save")
			os.Exit(2)
		}
		latest, err := savefile.Latest(filepath.Join(*dataDir, "worlds", *worldID, "saves"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest save:", err)
			os.Exit(1)
		}
		if latest == "" {
			fmt.Fprintln(os.Stderr, "no save found")
			os.Exit(2)
		}
		path = latest
	}

	sf, err := savefile.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read save:", err)
		os.Exit(1)
	}
	rep := inspect(path, sf)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if len(rep.Invalid) > 0 {
		os.Exit(1)
	}
}

func inspect(path string, sf savefile.SaveFile) inspectReport {
	rep := inspectReport{
		Path:     path,
		WorldID:  sf.Header.WorldID,
		Version:  sf.Header.Version,
		Tick:     sf.Header.Tick,
		Objects:  map[string]int{},
		Joints:   len(sf.Joints),
		Vehicles: len(sf.Vehicles),
		Regions:  map[string]int{},
	}
	for _, o := range sf.Objects {
		rep.Objects[o.Type]++
	}

	names := make([]string, 0, len(sf.Terrain))
	for name := range sf.Terrain {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rings := sf.Terrain[name]
		rep.Regions[name] = len(rings)
		for i, ring := range rings {
			if d := validateRing(ring); d != convex.Valid {
				rep.Invalid = append(rep.Invalid, ringReport{
					Region: name,
					Index:  i,
					Hole:   !convex.IsClockwise(ring),
					Points: len(ring),
					Status: d.String(),
				})
			}
		}
	}
	return rep
}

// validateRing checks shells as stored and holes with their winding flipped.
func validateRing(ring []mgl64.Vec2) convex.Diagnostic {
	if len(ring) < 3 {
		return convex.SelfIntersecting
	}
	if convex.IsClockwise(ring) {
		return convex.Validate(ring)
	}
	return convex.Validate(convex.Reverse(ring)) &^ convex.NotClockwise
}
