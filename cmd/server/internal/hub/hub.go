package hub

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

const DefaultQueueSize = 64

// Hub fans each generated batch out to every registered handle.
// Writers mutate the registration map under mu and publish an immutable
// snapshot; Broadcast only reads the snapshot.
type Hub struct {
	logger    *zap.Logger
	queueSize int

	mu      sync.Mutex
	handles map[uint64]*Handle
	nextID  uint64
	closed  bool

	snapshot atomic.Pointer[[]*Handle]

	broadcasts atomic.Uint64
	drops      atomic.Uint64
}

func New(logger *zap.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	h := &Hub{
		logger:    logger,
		queueSize: queueSize,
		handles:   make(map[uint64]*Handle),
	}
	h.snapshot.Store(&[]*Handle{})
	return h
}

// Register adds a handle. On a closed hub the returned handle is already closed.
func (h *Hub) Register(filter Filter) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	handle := newHandle(h.nextID, filter, h.queueSize)
	if h.closed {
		handle.close()
		return handle
	}

	h.handles[handle.id] = handle
	h.publishLocked()

	h.logger.Debug("Handle registered", zap.Uint64("handle_id", handle.id), zap.Int("handles", len(h.handles)))
	return handle
}

// Deregister removes handle and closes its queue. Safe to call more than once
// and concurrently with Broadcast: once it returns, nothing more is delivered.
func (h *Hub) Deregister(handle *Handle) {
	h.mu.Lock()
	if _, ok := h.handles[handle.id]; ok {
		delete(h.handles, handle.id)
		h.publishLocked()
	}
	remaining := len(h.handles)
	h.mu.Unlock()

	if handle.close() {
		h.logger.Debug("Handle deregistered", zap.Uint64("handle_id", handle.id), zap.Int("handles", remaining))
	}
}

// Broadcast hands batch to every handle whose filter matches it. It never blocks.
func (h *Hub) Broadcast(batch *models.Batch) {
	h.broadcasts.Add(1)

	for _, handle := range *h.snapshot.Load() {
		if !handle.filter.matchAny(batch) {
			continue
		}
		if handle.deliver(batch) {
			h.drops.Add(1)
			h.logger.Debug("Dropping batch for slow handle", zap.Uint64("handle_id", handle.id), zap.Uint64("seq", batch.Seq))
		}
	}
}

// Count returns the number of registered handles.
func (h *Hub) Count() int {
	return len(*h.snapshot.Load())
}

func (h *Hub) Stats() (broadcasts, drops uint64) {
	return h.broadcasts.Load(), h.drops.Load()
}

// Close deregisters every handle and rejects later registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	handles := make([]*Handle, 0, len(h.handles))
	for id, handle := range h.handles {
		handles = append(handles, handle)
		delete(h.handles, id)
	}
	h.publishLocked()
	h.mu.Unlock()

	for _, handle := range handles {
		handle.close()
	}
	h.logger.Info("Hub closed", zap.Int("handles", len(handles)))
}

func (h *Hub) publishLocked() {
	snap := make([]*Handle, 0, len(h.handles))
	for _, handle := range h.handles {
		snap = append(snap, handle)
	}
	h.snapshot.Store(&snap)
}
