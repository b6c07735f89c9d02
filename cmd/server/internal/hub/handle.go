package hub

import (
	"sync"
	"sync/atomic"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// Filter is the set of tickers a handle wants. A nil Filter matches everything.
type Filter map[string]struct{}

func NewFilter(tickers []string) Filter {
	f := make(Filter, len(tickers))
	for _, t := range tickers {
		f[t] = struct{}{}
	}
	return f
}

func (f Filter) Match(ticker string) bool {
	if f == nil {
		return true
	}
	_, ok := f[ticker]
	return ok
}

func (f Filter) matchAny(batch *models.Batch) bool {
	if f == nil {
		return true
	}
	for _, q := range batch.Quotes {
		if _, ok := f[q.Ticker]; ok {
			return true
		}
	}
	return false
}

type HandleStats struct {
	Delivered uint64
	Dropped   uint64
}

// Handle is one registrant's private bounded queue into the hub.
type Handle struct {
	id     uint64
	filter Filter
	ch     chan *models.Batch

	// mu is held only around a non-blocking send and around close
	mu     sync.Mutex
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newHandle(id uint64, filter Filter, size int) *Handle {
	return &Handle{
		id:     id,
		filter: filter,
		ch:     make(chan *models.Batch, size),
	}
}

func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) Filter() Filter { return h.filter }

// C yields batches in generation order. It is closed on deregistration.
func (h *Handle) C() <-chan *models.Batch { return h.ch }

func (h *Handle) Stats() HandleStats {
	return HandleStats{Delivered: h.delivered.Load(), Dropped: h.dropped.Load()}
}

// deliver enqueues batch without blocking and reports whether it was dropped
// because the queue was full. Closed handles are skipped silently.
func (h *Handle) deliver(batch *models.Batch) (dropped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	select {
	case h.ch <- batch:
		h.delivered.Add(1)
		return false
	default:
		h.dropped.Add(1)
		return true
	}
}

func (h *Handle) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.closed = true
	close(h.ch)
	return true
}
