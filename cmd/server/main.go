package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "scrapbox.gg/internal/persistence/log"
	"scrapbox.gg/internal/persistence/mirror"
	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics/box2d"
	"scrapbox.gg/internal/sim/tuning"
	"scrapbox.gg/internal/sim/world"
	"scrapbox.gg/internal/transport/discovery"
	"scrapbox.gg/internal/transport/observer"
	"scrapbox.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "WORLD", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks + catalogs + save metadata)")
		noDiscover = flag.Bool("disable_discovery", false, "do not announce the server over LAN multicast")

		savePath   = flag.String("save", "", "path to a save file to load (optional)")
		loadLatest = flag.Bool("load_latest_save", true, "load latest save from data dir if present (when -save is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Default()
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	saveDir := filepath.Join(worldDir, "saves")
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional read-model index backend. It never feeds back into the simulation.
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	cfg := world.ConfigFromTuning(*worldID, tune)
	w, err := world.New(cfg, cats, box2d.New(cfg.Gravity))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	saveToLoad := strings.TrimSpace(*savePath)
	if saveToLoad == "" && *loadLatest {
		saveToLoad, err = savefile.Latest(saveDir)
		if err != nil {
			logger.Fatalf("find latest save: %v", err)
		}
	}
	if saveToLoad != "" {
		sf, err := savefile.Read(saveToLoad)
		if err != nil {
			logger.Fatalf("read save: %v", err)
		}
		if sf.Header.WorldID != "" && sf.Header.WorldID != *worldID {
			logger.Fatalf("save world id mismatch: flag=%s save=%s", *worldID, sf.Header.WorldID)
		}
		if err := w.Load(sf); err != nil {
			logger.Fatalf("load save: %v", err)
		}
		logger.Printf("resumed from save=%s tick=%d objects=%d", filepath.Base(saveToLoad), w.CurrentTick(), len(sf.Objects))
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
	}

	saveMirror, err := openSaveMirror(logger)
	if err != nil {
		logger.Fatalf("save mirror: %v", err)
	}
	defer saveMirror.Close()

	store := saveWriter{worldID: *worldID, dir: saveDir, idx: idx, mirror: saveMirror, logger: logger}
	w.SetSaver(store.write)

	saveCh := make(chan savefile.SaveFile, 2)
	w.SetSaveSink(saveCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sf := <-saveCh:
				if err := store.write(sf); err != nil {
					logger.Printf("autosave: %v", err)
				}
			}
		}
	}()

	serverID := *worldID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if !*noDiscover {
		port := listenPort(*addr)
		b, err := discovery.NewBroadcaster(tune.Discovery.Group, tune.Discovery.Port, discovery.Announcement{ID: serverID, Port: port}, logger)
		if err != nil {
			logger.Printf("discovery disabled: %v", err)
		} else {
			defer b.Close()
			w.SetAnnouncer(b)
			go func() { _ = b.Run(ctx) }()
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
			cancel()
		}
	}()

	wsSrv := ws.NewServer(w, logger, ws.Options{
		ServerID:      serverID,
		TuningDigest:  tune.Digest(),
		RatePerSecond: tune.RateLimit.PerSecond,
		Burst:         tune.RateLimit.Burst,
	})

	obsSrv := observer.NewServer(w, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, *worldID, w.Metrics(), wsSrv.Sessions())
		fmt.Fprintf(rw, "# HELP scrapbox_observer_sessions Open spectator streams.\n")
		fmt.Fprintf(rw, "# TYPE scrapbox_observer_sessions gauge\n")
		fmt.Fprintf(rw, "scrapbox_observer_sessions{world=%q} %d\n", *worldID, obsSrv.Observers())
		if s, ok := idx.(statsIndex); ok {
			writeIndexMetrics(rw, *worldID, s)
		}
		if saveMirror != nil {
			writeMirrorMetrics(rw, *worldID, saveMirror.Stats())
		}
	})

	enableAdminHTTP := envBool("SB_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("SB_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID  string             `json:"world_id"`
				ServerID string             `json:"server_id"`
				Tick     uint64             `json:"tick"`
				Metrics  world.WorldMetrics `json:"metrics"`
			}{
				WorldID:  *worldID,
				ServerID: serverID,
				Tick:     w.CurrentTick(),
				Metrics:  w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/pause", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			paused := r.URL.Query().Get("paused") != "false"
			w.SetPaused(paused)
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "paused": paused})
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			sf := w.Dump()
			rw.Header().Set("Content-Type", "application/json")
			if err := store.write(sf); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": sf.Header.Tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": sf.Header.Tick})
		})

		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (SB_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s server_id=%s", *addr, *worldID, serverID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-runDone
	if err := tickLog.Flush(); err != nil {
		logger.Printf("tick log flush: %v", err)
	}
}

// saveWriter stores save files under dir, records them in the index and hands them
// to the off-box mirror.
type saveWriter struct {
	worldID string
	dir     string
	idx     runtimeIndex
	mirror  *mirror.Mirror
	logger  *log.Logger
}

func (s saveWriter) write(sf savefile.SaveFile) error {
	b, err := savefile.Marshal(sf)
	if err != nil {
		return err
	}
	path := savefile.Path(s.dir, sf.Header.Tick)
	if err := savefile.WriteBytes(path, b); err != nil {
		return err
	}
	if s.idx != nil {
		s.idx.RecordSave(path, sf, b)
	}
	s.mirror.Enqueue(s.worldID+"/saves/"+filepath.Base(path), b)
	s.logger.Printf("save written: %s (%d bytes)", filepath.Base(path), len(b))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeWorldMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, sessions int64) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP scrapbox_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_tick gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP scrapbox_world_objects Game objects by state.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_objects gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_objects{world=%q,state=%q} %d\n", worldID, "live", m.Objects)
	fmt.Fprintf(rw, "scrapbox_world_objects{world=%q,state=%q} %d\n", worldID, "pending", m.Pending)

	fmt.Fprintf(rw, "# HELP scrapbox_world_vehicles Current number of vehicles.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_vehicles gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_vehicles{world=%q} %d\n", worldID, m.Vehicles)

	fmt.Fprintf(rw, "# HELP scrapbox_world_players Current number of players.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_players gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_players{world=%q} %d\n", worldID, m.Players)

	fmt.Fprintf(rw, "# HELP scrapbox_ws_sessions Open websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_ws_sessions gauge\n")
	fmt.Fprintf(rw, "scrapbox_ws_sessions{world=%q} %d\n", worldID, sessions)

	fmt.Fprintf(rw, "# HELP scrapbox_world_terrain_regions Terrain regions with geometry.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_terrain_regions gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_terrain_regions{world=%q} %d\n", worldID, m.TerrainRegions)

	paused := 0
	if m.Paused {
		paused = 1
	}
	fmt.Fprintf(rw, "# HELP scrapbox_world_paused 1 while physics is paused.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_paused gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_paused{world=%q} %d\n", worldID, paused)

	fmt.Fprintf(rw, "# HELP scrapbox_world_physics_steps_total Engine steps since start.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_physics_steps_total counter\n")
	fmt.Fprintf(rw, "scrapbox_world_physics_steps_total{world=%q} %d\n", worldID, m.PhysicsSteps)

	fmt.Fprintf(rw, "# HELP scrapbox_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE scrapbox_world_step_ms gauge\n")
	fmt.Fprintf(rw, "scrapbox_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
