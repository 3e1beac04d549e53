package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"scrapbox.gg/internal/observerproto"
	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/world"
)

const outQueue = 4096

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader  websocket.Upgrader
	observers atomic.Int64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Observers counts open observer streams.
func (s *Server) Observers() int64 { return s.observers.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		cats := s.world.Catalogs()
		m := s.world.Metrics()
		materials := make([]string, 0, len(cats.Materials.Defs))
		for id := range cats.Materials.Defs {
			materials = append(materials, id)
		}
		sort.Strings(materials)

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz: cfg.TickRateHz,
				Substeps:   cfg.Substeps,
				Gravity:    [2]float64{cfg.Gravity.X(), cfg.Gravity.Y()},
			},
			Parts:     cats.Parts.PartIDs(),
			Materials: materials,
			Stats: observerproto.WorldStats{
				Objects:        m.Objects,
				Vehicles:       m.Vehicles,
				Players:        m.Players,
				TerrainRegions: m.TerrainRegions,
				Paused:         m.Paused,
			},
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sp := &spectator{out: make(chan []byte, outQueue), cancel: cancel}
		defer sp.closed.Store(true)

		s.observers.Add(1)
		defer s.observers.Add(-1)
		if s.log != nil {
			s.log.Printf("observer connected remote=%s", r.RemoteAddr)
		}

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sp.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		s.world.AddPlayer(sp)

		// Reader loop: only keeps the connection alive and notices the close.
		go func() {
			<-ctx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// spectator is a world connection that never produces intents.
type spectator struct {
	out    chan []byte
	cancel context.CancelFunc
	closed atomic.Bool
}

func (s *spectator) Read() []protocol.Message { return nil }
func (s *spectator) Disconnected() bool       { return s.closed.Load() }

func (s *spectator) Send(m protocol.Message) {
	if s.closed.Load() {
		return
	}
	b, err := protocol.Encode(m)
	if err != nil {
		return
	}
	select {
	case s.out <- b:
	default:
		s.closed.Store(true)
		s.cancel()
	}
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
