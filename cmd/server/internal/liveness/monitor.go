package liveness

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

const (
	maxDatagramSize = 512
	readBackoff     = 50 * time.Millisecond
)

// for deterministic testing
type Clock interface {
	Now() time.Time
}

type MonitorStats struct {
	Pings   uint64 // sentinel datagrams from a registered address
	Unknown uint64 // sentinel datagrams from an address with no session
	Ignored uint64 // datagrams that were not the sentinel
}

// Monitor reads keep-alive datagrams from a shared socket and refreshes the
// trackers of every session registered under the datagram's source address.
type Monitor struct {
	logger *zap.Logger
	conn   net.PacketConn
	clock  Clock

	mu       sync.RWMutex
	sessions map[netip.AddrPort]map[uuid.UUID]*Tracker

	pings   atomic.Uint64
	unknown atomic.Uint64
	ignored atomic.Uint64
}

func NewMonitor(logger *zap.Logger, conn net.PacketConn, clock Clock) *Monitor {
	return &Monitor{
		logger:   logger,
		conn:     conn,
		clock:    clock,
		sessions: make(map[netip.AddrPort]map[uuid.UUID]*Tracker),
	}
}

// Addr is the local address subscribers send keep-alives to.
func (m *Monitor) Addr() net.Addr { return m.conn.LocalAddr() }

// Key normalizes a UDP address for registry lookups.
func Key(addr net.Addr) (netip.AddrPort, bool) {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	ap := udp.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), ap.IsValid()
}

func (m *Monitor) Register(addr netip.AddrPort, id uuid.UUID, tracker *Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.sessions[addr]
	if !ok {
		byID = make(map[uuid.UUID]*Tracker)
		m.sessions[addr] = byID
	}
	byID[id] = tracker
}

func (m *Monitor) Deregister(addr netip.AddrPort, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byID, ok := m.sessions[addr]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(m.sessions, addr)
		}
	}
}

// Count returns the number of registered sessions.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byID := range m.sessions {
		n += len(byID)
	}
	return n
}

// Signal refreshes every session registered under from and returns how many
// were touched.
func (m *Monitor) Signal(from netip.AddrPort) int {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := m.sessions[from]
	for _, tracker := range byID {
		tracker.Touch(now)
	}
	return len(byID)
}

// Run reads datagrams until ctx is done or the socket is closed.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Liveness listener started", zap.Stringer("addr", m.conn.LocalAddr()))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := m.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				m.logger.Info("Liveness listener stopped", zap.Uint64("pings", m.pings.Load()))
				return nil
			}
			m.logger.Warn("Liveness read error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readBackoff):
			}
			continue
		}
		m.handle(buf[:n], from)
	}
}

func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Pings:   m.pings.Load(),
		Unknown: m.unknown.Load(),
		Ignored: m.ignored.Load(),
	}
}

func (m *Monitor) handle(payload []byte, from net.Addr) {
	if !protocol.IsPing(payload) {
		m.ignored.Add(1)
		return
	}

	key, ok := Key(from)
	if !ok {
		m.ignored.Add(1)
		return
	}

	if m.Signal(key) == 0 {
		m.unknown.Add(1)
		m.logger.Debug("Ping from unknown address", zap.Stringer("addr", key))
		return
	}
	m.pings.Add(1)
}
