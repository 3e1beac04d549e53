package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics/box2d"
	"scrapbox.gg/internal/sim/world"
)

func newWorld(t *testing.T) *world.World {
	t.Helper()
	g := mgl64.Vec2{0, -1e-9}
	w, err := world.New(world.WorldConfig{ID: "WS", Gravity: g, TickRateHz: 50}, catalogs.Defaults(), box2d.New(g))
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func hello(t *testing.T, c *websocket.Conn, version string) {
	t.Helper()
	b, _ := json.Marshal(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: version, ClientName: "test"})
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatal(err)
	}
}

func send(t *testing.T, c *websocket.Conn, m protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatal(err)
	}
}

// readUntil reads raw frames until one has the wanted type.
func readUntil(t *testing.T, c *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(raw)
		if err == nil && base.Type == typ {
			return raw
		}
	}
}

func TestHandshake_Welcome(t *testing.T) {
	w := newWorld(t)
	s := NewServer(w, nil, Options{ServerID: "srv-1"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := dial(t, srv)
	hello(t, c, protocol.Version)
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, c, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatal(err)
	}
	if welcome.ServerID != "srv-1" || welcome.SessionID == "" || welcome.TickRateHz != 50 {
		t.Fatalf("welcome %+v", welcome)
	}
	if len(welcome.Parts) != len(catalogs.DefaultParts) || welcome.Catalogs.PartsDigest == "" {
		t.Fatalf("welcome should describe the part catalog: %+v", welcome)
	}
	readUntil(t, c, protocol.TypeTerrainState)
}

func TestHandshake_RejectsOtherVersions(t *testing.T) {
	w := newWorld(t)
	srv := httptest.NewServer(NewServer(w, nil, Options{}).Handler())
	defer srv.Close()

	c := dial(t, srv)
	hello(t, c, "0.1")
	var em protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, c, protocol.TypeError), &em); err != nil {
		t.Fatal(err)
	}
	if em.Code != protocol.ErrProtoVersion {
		t.Fatalf("code %q", em.Code)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatalf("connection should be closed after the rejection")
	}
	if w.PlayerCount() != 0 {
		t.Fatalf("rejected clients never become players")
	}
}

func TestSession_TakeObjectThroughRunningWorld(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, nil, Options{}).Handler())
	defer srv.Close()

	c := dial(t, srv)
	hello(t, c, protocol.Version)
	readUntil(t, c, protocol.TypeWelcome)
	send(t, c, protocol.TakeObject{ObjectType: "frame", Position: protocol.Vec2{1, 2}})

	m, err := protocol.Decode(readUntil(t, c, protocol.TypeTakeObjectResponse))
	if err != nil {
		t.Fatal(err)
	}
	id := m.(protocol.TakeObjectResponse).ID
	readUntil(t, c, protocol.TypeAddGameObject)
	if w.Metrics().Objects+w.Metrics().Pending == 0 {
		t.Fatalf("object %d should exist", id)
	}
}

func TestSession_RejectsStateMessagesAndRateLimits(t *testing.T) {
	w := newWorld(t)
	srv := httptest.NewServer(NewServer(w, nil, Options{RatePerSecond: 0.001, Burst: 2}).Handler())
	defer srv.Close()

	c := dial(t, srv)
	hello(t, c, protocol.Version)
	readUntil(t, c, protocol.TypeWelcome)

	send(t, c, protocol.RemoveGameObject{ID: 1})
	var em protocol.ErrorMsg
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeError), &em)
	if em.Code != protocol.ErrBadRequest {
		t.Fatalf("state message from a client: code %q", em.Code)
	}

	send(t, c, protocol.ToggleGamePaused{})
	send(t, c, protocol.ToggleGamePaused{})
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeError), &em)
	if em.Code != protocol.ErrRateLimit {
		t.Fatalf("expected rate limit, got %q", em.Code)
	}
}

func TestSession_RejectsUnknownCatalogRefs(t *testing.T) {
	w := newWorld(t)
	srv := httptest.NewServer(NewServer(w, nil, Options{}).Handler())
	defer srv.Close()

	c := dial(t, srv)
	hello(t, c, protocol.Version)
	readUntil(t, c, protocol.TypeWelcome)

	cases := []struct {
		msg  protocol.Message
		code string
	}{
		{protocol.TakeObject{ObjectType: "hoverboard"}, protocol.ErrUnknownPart},
		{protocol.PlaceTerrain{Material: "lava", Strength: 1}, protocol.ErrUnknownMaterial},
	}
	for _, tc := range cases {
		send(t, c, tc.msg)
		var em protocol.ErrorMsg
		_ = json.Unmarshal(readUntil(t, c, protocol.TypeError), &em)
		if em.Code != tc.code {
			t.Fatalf("%s: code %q, want %q", tc.msg.MessageType(), em.Code, tc.code)
		}
	}
}
