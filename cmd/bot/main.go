package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/tuning"
	"scrapbox.gg/internal/transport/discovery"
)

// The bot builds a two-part vehicle: it takes a frame, takes a wheel, drags the
// wheel under the frame as a ghost and welds it.
type stage int

const (
	stageTakeFrame stage = iota
	stageTakeWheel
	stageDrag
	stageDone
)

func main() {
	def := tuning.Default()
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url (ignored with -discover)")
		find     = flag.Bool("discover", false, "find a server through LAN multicast announcements")
		group    = flag.String("group", def.Discovery.Group, "discovery multicast group")
		port     = flag.Int("port", def.Discovery.Port, "discovery port")
		name     = flag.String("name", "bot", "client name")
		duration = flag.Duration("duration", 30*time.Second, "how long to stay connected")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	target := *url
	if *find {
		u, err := discover(ctx, *group, *port, 10*time.Second)
		if err != nil {
			logger.Fatalf("discover: %v", err)
		}
		target = u
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", target, err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: *name}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	msgs := make(chan []byte, 256)
	go func() {
		defer close(msgs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- b
		}
	}()

	b := &bot{conn: conn, log: logger}
	deadline := time.After(*duration)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			logger.Printf("done: frame=%d wheel=%d stage=%d", b.frame, b.wheel, b.stage)
			return
		case raw, ok := <-msgs:
			if !ok {
				logger.Printf("connection closed")
				return
			}
			if err := b.handle(raw); err != nil {
				logger.Printf("%v", err)
				return
			}
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  *log.Logger

	stage      stage
	frame      int
	wheel      int
	framePos   protocol.Vec2
	dragFrames int
}

func (b *bot) send(m protocol.Message) error {
	raw, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *bot) handle(raw []byte) error {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		b.log.Printf("WELCOME server=%s session=%s tick_rate=%d parts=%d", w.ServerID, w.SessionID, w.TickRateHz, len(w.Parts))
		floor := []protocol.Vec2{{-30, -10}, {30, -10}, {30, 0}, {-30, 0}}
		if err := b.send(protocol.PlaceTerrain{Material: "dirt", Polygon: floor}); err != nil {
			return err
		}
		return b.send(protocol.TakeObject{ObjectType: "frame", Position: protocol.Vec2{0, 4}})
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(raw, &e)
		return fmt.Errorf("server error %s: %s", e.Code, e.Message)
	}

	m, err := protocol.Decode(raw)
	if err != nil {
		return nil
	}
	switch msg := m.(type) {
	case protocol.TakeObjectResponse:
		switch b.stage {
		case stageTakeFrame:
			b.frame, b.stage = msg.ID, stageTakeWheel
			return b.send(protocol.TakeObject{ObjectType: "wheel", Position: protocol.Vec2{4, 4}})
		case stageTakeWheel:
			b.wheel, b.stage = msg.ID, stageDrag
			b.log.Printf("took frame=%d wheel=%d", b.frame, b.wheel)
			if err := b.send(protocol.PinchingSetGhost{Ghost: true}); err != nil {
				return err
			}
			return b.send(protocol.GameObjectPinch{ID: b.wheel})
		}
	case protocol.MoveGameObject:
		if msg.ID == b.frame {
			b.framePos = msg.Position
		}
		if b.stage != stageDrag || msg.ID != b.wheel {
			return nil
		}
		b.dragFrames++
		return b.send(protocol.MouseMoved{Position: protocol.Vec2{b.framePos[0], b.framePos[1] - 1}})
	case protocol.ShowActivePossibleWelds:
		if b.stage != stageDrag || len(msg.Welds) == 0 || b.dragFrames < 10 {
			return nil
		}
		b.stage = stageDone
		b.log.Printf("welding after %d drag updates", b.dragFrames)
		if err := b.send(protocol.CommitWeld{}); err != nil {
			return err
		}
		return b.send(protocol.GameObjectRelease{})
	}
	return nil
}

// discover waits for the first announcement and returns the server's ws url.
func discover(ctx context.Context, group string, port int, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var found string
	err := discovery.Listen(ctx, group, port, func(a discovery.Announcement, from *net.UDPAddr) {
		if found != "" || from == nil {
			return
		}
		found = fmt.Sprintf("ws://%s/v1/ws", net.JoinHostPort(from.IP.String(), fmt.Sprint(a.Port)))
		cancel()
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no server announced on %s:%d within %s", group, port, timeout)
	}
	return found, nil
}
