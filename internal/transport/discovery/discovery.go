// Package discovery advertises a running server on the local network over UDP
// multicast and lets clients listen for those adverts.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"

	"golang.org/x/net/ipv4"
)

// Announcement is the datagram payload.
type Announcement struct {
	ID   string `json:"id"`
	Port int    `json:"port"`
}

type Broadcaster struct {
	group   *net.UDPAddr
	payload []byte
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	kick    chan struct{}
	log     *log.Logger
}

func groupAddr(group string, port int) (*net.UDPAddr, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("discovery: %q is not an IPv4 multicast group", group)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("discovery: bad port %d", port)
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func NewBroadcaster(group string, port int, a Announcement, logger *log.Logger) (*Broadcaster, error) {
	addr, err := groupAddr(group, port)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	// Stay on the local segment.
	if err := pc.SetMulticastTTL(1); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("discovery: ttl: %w", err)
	}
	_ = pc.SetMulticastLoopback(true)
	return &Broadcaster{
		group:   addr,
		payload: payload,
		conn:    conn,
		pc:      pc,
		kick:    make(chan struct{}, 1),
		log:     logger,
	}, nil
}

// Announce asks Run to send one advert. It never blocks; requests made while one
// is still queued collapse into it.
func (b *Broadcaster) Announce() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Run sends adverts until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.kick:
			if _, err := b.pc.WriteTo(b.payload, nil, b.group); err != nil && b.log != nil {
				b.log.Printf("announce: %v", err)
			}
		}
	}
}

func (b *Broadcaster) Close() error { return b.conn.Close() }

// Listen joins group and reports every announcement until ctx is done.
// Malformed datagrams are skipped.
func Listen(ctx context.Context, group string, port int, fn func(Announcement, *net.UDPAddr)) error {
	addr, err := groupAddr(group, port)
	if err != nil {
		return err
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	defer conn.Close()
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(nil, &net.UDPAddr{IP: addr.IP}); err != nil {
		return fmt.Errorf("discovery: join %s: %w", group, err)
	}
	defer pc.LeaveGroup(nil, &net.UDPAddr{IP: addr.IP})

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		var a Announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil || a.ID == "" {
			continue
		}
		from, _ := src.(*net.UDPAddr)
		fn(a, from)
	}
}
