package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/transport/mailbox"
)

// conn is the world's view of one websocket session. Decoded intents queue in
// the mailbox until the tick drains them; outbound messages are encoded on the
// tick goroutine and handed to the writer.
type conn struct {
	in     mailbox.Mailbox[protocol.Message]
	out    chan []byte
	cancel context.CancelFunc
	closed atomic.Bool
}

func (c *conn) Read() []protocol.Message { return c.in.Drain() }

func (c *conn) Disconnected() bool { return c.closed.Load() }

func (c *conn) Send(m protocol.Message) {
	b, err := protocol.Encode(m)
	if err != nil {
		return
	}
	c.enqueue(b)
}

func (c *conn) sendError(code, msg string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	if err != nil {
		return
	}
	c.enqueue(b)
}

// enqueue never blocks. A client that falls a full queue behind is dropped
// rather than silently missing state.
func (c *conn) enqueue(b []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.out <- b:
	default:
		c.closed.Store(true)
		c.cancel()
	}
}
