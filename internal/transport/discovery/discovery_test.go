package discovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewBroadcaster_RejectsBadGroups(t *testing.T) {
	for _, tc := range []struct {
		group string
		port  int
	}{
		{"10.0.0.1", 4321},
		{"not-an-ip", 4321},
		{"ff02::1", 4321},
		{"230.1.2.3", 0},
	} {
		if _, err := NewBroadcaster(tc.group, tc.port, Announcement{ID: "x"}, nil); err == nil {
			t.Fatalf("%s:%d should be rejected", tc.group, tc.port)
		}
	}
}

func TestBroadcaster_AnnounceNeverBlocks(t *testing.T) {
	b, err := NewBroadcaster("230.1.2.3", 4321, Announcement{ID: "srv", Port: 8080}, nil)
	if err != nil {
		t.Skipf("no udp4 socket here: %v", err)
	}
	defer b.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Announce()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Announce blocked without a running sender")
	}

	var a Announcement
	if err := json.Unmarshal(b.payload, &a); err != nil || a.ID != "srv" || a.Port != 8080 {
		t.Fatalf("payload %s", b.payload)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- b.Run(ctx) }()
	cancel()
	select {
	case err := <-ran:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run ignored cancellation")
	}
}
