package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scrapbox.gg/internal/persistence/indexdb"
	persistlog "scrapbox.gg/internal/persistence/log"
	"scrapbox.gg/internal/sim/world"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	idx, err := indexdb.OpenSQLiteQuery(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch q {
	case "saves":
		rows, err := idx.ListSaves(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "ticks":
		sum, err := idx.SummarizeTicks(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(sum)

	case "catalogs":
		rows, err := idx.ListCatalogs(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] saves|ticks|catalogs")
		os.Exit(2)
	}
}

// ticksCmd summarizes the tick log files directly, for worlds run with -disable_db.
func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	slowMS := fs.Float64("slow_ms", 0, "also print ticks slower than this (0 disables)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	files, err := persistlog.TickFiles(filepath.Join(*dataDir, "worlds", *worldID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}

	var sum indexdb.TickSummary
	var total float64
	for _, f := range files {
		err := persistlog.ReadTicks(f, func(e world.TickLogEntry) error {
			if sum.Ticks == 0 || e.Tick < sum.FirstTick {
				sum.FirstTick = e.Tick
			}
			if e.Tick > sum.LastTick {
				sum.LastTick = e.Tick
			}
			sum.Ticks++
			sum.Admitted += e.Admitted
			sum.Reaped += e.Reaped
			sum.Intents += e.Intents
			total += e.StepMS
			if e.StepMS > sum.MaxStepMS {
				sum.MaxStepMS = e.StepMS
			}
			if *slowMS > 0 && e.StepMS > *slowMS {
				printJSON(e)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", filepath.Base(f), err)
			os.Exit(1)
		}
	}
	if sum.Ticks > 0 {
		sum.AvgStepMS = total / float64(sum.Ticks)
	}
	printJSON(sum)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
