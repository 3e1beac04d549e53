package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/tuning"
	"scrapbox.gg/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	dropSave atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSave
)

type req struct {
	kind reqKind
	tick world.TickLogEntry
	save SaveRow
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
	DropSaveTotal uint64 `json:"drop_save_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			admitted INTEGER NOT NULL,
			reaped INTEGER NOT NULL,
			intents INTEGER NOT NULL,
			rebuilt TEXT NOT NULL,
			paused INTEGER NOT NULL,
			step_ms REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			tick INTEGER NOT NULL,
			world_id TEXT NOT NULL,
			path TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			digest TEXT NOT NULL,
			objects INTEGER NOT NULL,
			vehicles INTEGER NOT NULL,
			joints INTEGER NOT NULL,
			terrain_regions INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (world_id, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_recorded ON saves(recorded_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if s.ch != nil {
			close(s.ch)
			s.wg.Wait()
		}
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; the JSONL tick log remains the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSave(path string, sf savefile.SaveFile, contents []byte) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSave, save: NewSaveRow(path, sf, contents)}:
	default:
		s.dropSave.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		DropSaveTotal: s.dropSave.Load(),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(configDir, cats, tune) {
		if _, err := stmt.Exec(r.Name, r.Digest, string(r.JSON), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSaves returns the newest saves first.
func (s *SQLiteIndex) ListSaves(ctx context.Context, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,world_id,path,bytes,digest,objects,vehicles,joints,terrain_regions,recorded_at
		FROM saves ORDER BY recorded_at DESC, tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		var tick int64
		if err := rows.Scan(&tick, &r.WorldID, &r.Path, &r.Bytes, &r.Digest, &r.Objects, &r.Vehicles, &r.Joints, &r.TerrainRegions, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CatalogInfo is one stored catalog without its body.
type CatalogInfo struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	Bytes     int    `json:"bytes"`
	UpdatedAt string `json:"updated_at"`
}

func (s *SQLiteIndex) ListCatalogs(ctx context.Context) ([]CatalogInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name,digest,LENGTH(json),updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CatalogInfo
	for rows.Next() {
		var c CatalogInfo
		if err := rows.Scan(&c.Name, &c.Digest, &c.Bytes, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TickSummary aggregates the indexed tick stats.
type TickSummary struct {
	Ticks     int     `json:"ticks"`
	FirstTick uint64  `json:"first_tick"`
	LastTick  uint64  `json:"last_tick"`
	Admitted  int     `json:"admitted"`
	Reaped    int     `json:"reaped"`
	Intents   int     `json:"intents"`
	AvgStepMS float64 `json:"avg_step_ms"`
	MaxStepMS float64 `json:"max_step_ms"`
}

func (s *SQLiteIndex) SummarizeTicks(ctx context.Context) (TickSummary, error) {
	var t TickSummary
	var first, last sql.NullInt64
	var avg, maxStep sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(tick), MAX(tick),
		COALESCE(SUM(admitted),0), COALESCE(SUM(reaped),0), COALESCE(SUM(intents),0),
		AVG(step_ms), MAX(step_ms) FROM ticks`).
		Scan(&t.Ticks, &first, &last, &t.Admitted, &t.Reaped, &t.Intents, &avg, &maxStep)
	if err != nil {
		return t, err
	}
	t.FirstTick = uint64(first.Int64)
	t.LastTick = uint64(last.Int64)
	t.AvgStepMS = avg.Float64
	t.MaxStepMS = maxStep.Float64
	return t, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,admitted,reaped,intents,rebuilt,paused,step_ms) VALUES(?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(tick,world_id,path,bytes,digest,objects,vehicles,joints,terrain_regions,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertSave != nil {
			_ = insertSave.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				continue
			}
			rebuilt, _ := json.Marshal(r.tick.Rebuilt)
			paused := 0
			if r.tick.Paused {
				paused = 1
			}
			if _, err := tx.Stmt(insertTick).Exec(
				int64(r.tick.Tick),
				r.tick.Admitted,
				r.tick.Reaped,
				r.tick.Intents,
				string(rebuilt),
				paused,
				r.tick.StepMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSave:
			sv := r.save
			if insertSave == nil {
				continue
			}
			if _, err := tx.Stmt(insertSave).Exec(
				int64(sv.Tick),
				sv.WorldID,
				sv.Path,
				sv.Bytes,
				sv.Digest,
				sv.Objects,
				sv.Vehicles,
				sv.Joints,
				sv.TerrainRegions,
				sv.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			// Saves are rare and admin tools look for them right away.
			commit()
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

// OpenSQLiteQuery opens an existing index for queries without starting the writer.
func OpenSQLiteQuery(path string) (*SQLiteIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteIndex{db: db}
	s.closed.Store(true)
	return s, nil
}
