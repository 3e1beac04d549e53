// Package local connects an in-process client to a world without any I/O.
package local

import (
	"sync/atomic"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/transport/mailbox"
)

// Conn is the world side of a local connection.
type Conn struct {
	in     mailbox.Mailbox[protocol.Message]
	out    mailbox.Mailbox[protocol.Message]
	closed atomic.Bool
}

// Client is the player side of a local connection.
type Client struct{ c *Conn }

// New returns both ends of a fresh connection.
func New() (*Conn, *Client) {
	c := &Conn{}
	return c, &Client{c: c}
}

func (c *Conn) Read() []protocol.Message { return c.in.Drain() }

func (c *Conn) Send(m protocol.Message) {
	if !c.closed.Load() {
		c.out.Push(m)
	}
}

func (c *Conn) Disconnected() bool { return c.closed.Load() }

// Send queues an intent for the next tick.
func (cl *Client) Send(m protocol.Message) { cl.c.in.Push(m) }

// Receive drains the messages the world sent since the last call.
func (cl *Client) Receive() []protocol.Message { return cl.c.out.Drain() }

func (cl *Client) Close() { cl.c.closed.Store(true) }
