package mailbox

import (
	"sync"
	"testing"
)

func TestMailbox_ManyProducersOneConsumer(t *testing.T) {
	var m Mailbox[int]
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Push(p*1000 + i)
			}
		}(p)
	}

	got := 0
	lastPer := map[int]int{}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	drain := func() {
		for _, v := range m.Drain() {
			p, i := v/1000, v%1000
			if last, ok := lastPer[p]; ok && i <= last {
				t.Fatalf("producer %d out of order: %d after %d", p, i, last)
			}
			lastPer[p] = i
			got++
		}
	}
	for {
		select {
		case <-done:
			drain()
			if got != 800 {
				t.Fatalf("drained %d items, want 800", got)
			}
			if m.Len() != 0 {
				t.Fatalf("mailbox should be empty")
			}
			return
		default:
			drain()
		}
	}
}
