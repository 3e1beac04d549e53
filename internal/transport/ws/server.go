package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/world"
	"scrapbox.gg/internal/sim/world/terrain"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	outQueue         = 4096
)

type Options struct {
	ServerID     string
	TuningDigest string
	// Inbound messages per second and burst per connection. Zero disables the limit.
	RatePerSecond float64
	Burst         int
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.ServerID == "" {
		opts.ServerID = uuid.NewString()
	}
	s := &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Sessions counts connections that passed the handshake and are still open.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		sessionID, ok := s.handshake(ws)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c := &conn{out: make(chan []byte, outQueue), cancel: cancel}
		defer c.closed.Store(true)

		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.logf("session %s joined from %s", sessionID, r.RemoteAddr)

		// Writer goroutine.
		go func() {
			defer ws.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		s.world.AddPlayer(c)

		var limiter *rate.Limiter
		if s.opts.RatePerSecond > 0 {
			burst := s.opts.Burst
			if burst <= 0 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), burst)
		}

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
			_, raw, err := ws.ReadMessage()
			if err != nil {
				break
			}
			if limiter != nil && !limiter.Allow() {
				c.sendError(protocol.ErrRateLimit, "too many messages")
				continue
			}
			m, err := protocol.Decode(raw)
			if err != nil {
				c.sendError(protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if !protocol.IsIntent(m.MessageType()) {
				c.sendError(protocol.ErrBadRequest, "not an intent: "+m.MessageType())
				continue
			}
			if code, why := s.checkCatalogRefs(m); code != "" {
				c.sendError(code, why)
				continue
			}
			c.in.Push(m)
		}
		s.logf("session %s left", sessionID)
	}
}

func (s *Server) handshake(ws *websocket.Conn) (sessionID string, ok bool) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(ws, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoVersion,
			Message:         "server speaks " + protocol.Version,
		})
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}
	if hello.ClientName == "" {
		hello.ClientName = "player"
	}

	sessionID = uuid.NewString()
	cats := s.world.Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ServerID:        s.opts.ServerID,
		SessionID:       sessionID,
		TickRateHz:      s.world.Config().TickRateHz,
		Parts:           cats.Parts.PartIDs(),
		Catalogs: protocol.CatalogDigests{
			MaterialsDigest: cats.Materials.Digest,
			PartsDigest:     cats.Parts.Digest,
			TuningDigest:    s.opts.TuningDigest,
		},
	}
	if err := writeJSON(ws, welcome); err != nil {
		return "", false
	}
	s.logf("HELLO from %q, session %s", hello.ClientName, sessionID)
	return sessionID, true
}

// checkCatalogRefs rejects intents naming parts or materials this server
// does not have.
func (s *Server) checkCatalogRefs(m protocol.Message) (code, why string) {
	cats := s.world.Catalogs()
	switch msg := m.(type) {
	case protocol.TakeObject:
		if _, ok := cats.Parts.Defs[msg.ObjectType]; !ok {
			return protocol.ErrUnknownPart, "unknown object_type: " + msg.ObjectType
		}
	case protocol.PlaceTerrain:
		if msg.Material == terrain.Removal {
			return "", ""
		}
		if _, ok := cats.Materials.Defs[msg.Material]; !ok {
			return protocol.ErrUnknownMaterial, "unknown material: " + msg.Material
		}
	}
	return "", ""
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, b)
}
