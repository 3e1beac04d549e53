package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scrapbox.gg/internal/persistence/indexdb"
	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/tuning"
	"scrapbox.gg/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSave(path string, sf savefile.SaveFile, contents []byte)
}

// statsIndex is implemented by the SQLite backend.
type statsIndex interface {
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SB_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "http":
		endpoint := strings.TrimSpace(os.Getenv("SB_INDEX_HTTP_URL"))
		token := strings.TrimSpace(os.Getenv("SB_INDEX_HTTP_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("SB_INDEX_BACKEND=http but SB_INDEX_HTTP_URL is empty")
		}
		idx, err := indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      endpoint,
			Token:         token,
			WorldID:       worldID,
			BatchSize:     envInt("SB_INDEX_HTTP_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("SB_INDEX_HTTP_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SB_INDEX_BACKEND: %s", backend)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, worldID string, idx statsIndex) {
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP scrapbox_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "scrapbox_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP scrapbox_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_index_dropped_total counter\n")
	fmt.Fprintf(rw, "scrapbox_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "scrapbox_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "save", s.DropSaveTotal)
}
