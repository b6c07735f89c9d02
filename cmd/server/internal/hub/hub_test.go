package hub_test

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/hub"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

func batch(seq uint64, tickers ...string) *models.Batch {
	b := &models.Batch{Seq: seq}
	for _, t := range tickers {
		b.Quotes = append(b.Quotes, models.Quote{Ticker: t, Price: 100, Volume: 100, Timestamp: int64(seq)})
	}
	return b
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	h := hub.New(zap.NewNop(), 4)
	a := h.Register(hub.NewFilter([]string{"AAPL"}))
	b := h.Register(nil)

	if h.Count() != 2 {
		t.Fatalf("Expected 2 handles, got %d", h.Count())
	}

	sent := batch(1, "AAPL", "TSLA")
	h.Broadcast(sent)

	if got := <-a.C(); got != sent {
		t.Error("Handle a should receive the shared batch")
	}
	if got := <-b.C(); got != sent {
		t.Error("Handle b should receive the shared batch")
	}
}

func TestHub_FilterSkipsUnmatchedBatches(t *testing.T) {
	h := hub.New(zap.NewNop(), 4)
	a := h.Register(hub.NewFilter([]string{"MSFT"}))

	h.Broadcast(batch(1, "AAPL", "TSLA"))

	select {
	case <-a.C():
		t.Error("Batch without MSFT should not be queued")
	default:
	}
}

func TestHub_DropNewestWhenFull(t *testing.T) {
	h := hub.New(zap.NewNop(), 2)
	slow := h.Register(nil)
	fast := h.Register(nil)

	for seq := uint64(1); seq <= 5; seq++ {
		h.Broadcast(batch(seq, "AAPL"))
		<-fast.C()
	}

	stats := slow.Stats()
	if stats.Delivered != 2 || stats.Dropped != 3 {
		t.Errorf("Expected 2 delivered / 3 dropped, got %+v", stats)
	}
	if fast.Stats().Dropped != 0 {
		t.Error("A draining handle must not lose batches because another is slow")
	}

	// the oldest batches are kept
	if first := <-slow.C(); first.Seq != 1 {
		t.Errorf("Expected seq 1 first, got %d", first.Seq)
	}
	if second := <-slow.C(); second.Seq != 2 {
		t.Errorf("Expected seq 2 second, got %d", second.Seq)
	}

	_, drops := h.Stats()
	if drops != 3 {
		t.Errorf("Expected hub drop count 3, got %d", drops)
	}
}

func TestHub_DeregisterClosesAndStopsDelivery(t *testing.T) {
	h := hub.New(zap.NewNop(), 4)
	a := h.Register(nil)

	h.Deregister(a)
	h.Deregister(a) // idempotent

	if h.Count() != 0 {
		t.Errorf("Expected 0 handles, got %d", h.Count())
	}

	h.Broadcast(batch(1, "AAPL"))

	if _, ok := <-a.C(); ok {
		t.Error("Expected closed channel with no batch after deregistration")
	}
}

func TestHub_CloseRejectsLateRegistration(t *testing.T) {
	h := hub.New(zap.NewNop(), 4)
	a := h.Register(nil)
	h.Close()

	if _, ok := <-a.C(); ok {
		t.Error("Close should close existing handles")
	}

	late := h.Register(nil)
	if _, ok := <-late.C(); ok {
		t.Error("Registration after Close should yield a closed handle")
	}
	if h.Count() != 0 {
		t.Errorf("Expected 0 handles after close, got %d", h.Count())
	}
}

func TestHub_ConcurrentRegisterBroadcastDeregister(t *testing.T) {
	// Run with `go test -race ./...`
	h := hub.New(zap.NewNop(), 1)
	stop := make(chan struct{})

	var producer sync.WaitGroup
	producer.Add(1)
	go func() {
		defer producer.Done()
		var seq uint64
		for {
			select {
			case <-stop:
				return
			default:
				seq++
				h.Broadcast(batch(seq, "AAPL"))
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := h.Register(nil)
			select {
			case <-handle.C():
			default:
			}
			h.Deregister(handle)
		}()
	}
	wg.Wait()
	close(stop)
	producer.Wait()

	if h.Count() != 0 {
		t.Errorf("Expected all handles deregistered, got %d", h.Count())
	}
}
