package session

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/liveness"
	"github.com/shubham-shewale/quote-stream/pkg/models"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

type Config struct {
	Addr    *net.UDPAddr
	Tickers []string
	Timeout time.Duration
	// PollInterval bounds how late an expiry is noticed when no batch arrives.
	// Keep it at or below the generator tick.
	PollInterval time.Duration
}

// Session streams one subscriber's tickers to its delivery address until the
// subscriber stops sending keep-alives or the server shuts down.
type Session struct {
	id      uuid.UUID
	addr    *net.UDPAddr
	key     netip.AddrPort
	tickers []string
	filter  hub.Filter
	timeout time.Duration
	poll    time.Duration

	conn      Conn
	registry  Registry
	keepalive KeepAlive
	handle    *hub.Handle
	tracker   *liveness.Tracker
	clock     Clock
	logger    *zap.Logger

	state   atomic.Int32
	release sync.Once
	reason  State
	done    chan struct{}

	sent         atomic.Uint64
	sendFailures atomic.Uint64
	filtered     atomic.Uint64
}

// New registers the session with the hub and the liveness monitor. The
// session is in StateCreated until Run receives its first batch.
func New(logger *zap.Logger, cfg Config, conn Conn, registry Registry, keepalive KeepAlive, clock Clock) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	id := uuid.New()
	key, _ := liveness.Key(cfg.Addr)
	filter := hub.NewFilter(cfg.Tickers)

	s := &Session{
		id:        id,
		addr:      cfg.Addr,
		key:       key,
		tickers:   cfg.Tickers,
		filter:    filter,
		timeout:   cfg.Timeout,
		poll:      cfg.PollInterval,
		conn:      conn,
		registry:  registry,
		keepalive: keepalive,
		tracker:   liveness.NewTracker(clock.Now()),
		clock:     clock,
		logger:    logger.With(zap.String("session_id", id.String()), zap.Stringer("addr", cfg.Addr)),
		done:      make(chan struct{}),
	}

	s.handle = registry.Register(filter)
	keepalive.Register(key, id, s.tracker)

	s.logger.Info("Session created", zap.Strings("tickers", cfg.Tickers))
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Addr() *net.UDPAddr { return s.addr }

func (s *Session) Tickers() []string { return s.tickers }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has released its resources.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Stats() Stats {
	return Stats{
		Sent:         s.sent.Load(),
		SendFailures: s.sendFailures.Load(),
		Filtered:     s.filtered.Load(),
		Dropped:      s.handle.Stats().Dropped,
	}
}

// Run streams until expiry or cancellation and returns the reason it stopped,
// StateExpired or StateShutdownRequested.
func (s *Session) Run(ctx context.Context) State {
	poll := time.NewTicker(s.poll)
	defer poll.Stop()

	for {
		if s.tracker.Expired(s.clock.Now(), s.timeout) {
			return s.Terminate(StateExpired)
		}

		select {
		case <-ctx.Done():
			return s.Terminate(StateShutdownRequested)
		case batch, ok := <-s.handle.C():
			if !ok {
				// deregistered elsewhere: hub closed or Terminate already ran
				return s.Terminate(StateShutdownRequested)
			}
			s.state.CompareAndSwap(int32(StateCreated), int32(StateStreaming))
			s.send(batch)
		case <-poll.C:
		}
	}
}

// Terminate moves the session to reason and then to StateTerminated,
// releasing the hub handle, the liveness registration, and the socket.
// Only the first call has an effect; every call returns the first reason.
func (s *Session) Terminate(reason State) State {
	s.release.Do(func() {
		s.reason = reason
		s.state.Store(int32(reason))

		s.registry.Deregister(s.handle)
		s.keepalive.Deregister(s.key, s.id)
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Failed to close delivery socket", zap.Error(err))
		}

		s.state.Store(int32(StateTerminated))
		close(s.done)

		stats := s.Stats()
		fields := []zap.Field{
			zap.Stringer("reason", reason),
			zap.Uint64("sent", stats.Sent),
			zap.Uint64("send_failures", stats.SendFailures),
			zap.Uint64("filtered", stats.Filtered),
			zap.Uint64("dropped_batches", stats.Dropped),
		}
		if reason == StateExpired {
			fields = append(fields, zap.Time("last_ping", s.tracker.Last()))
		}
		s.logger.Info("Session stopped", fields...)
	})
	return s.reason
}

func (s *Session) send(batch *models.Batch) {
	for _, q := range batch.Quotes {
		if !s.filter.Match(q.Ticker) {
			s.filtered.Add(1)
			continue
		}
		if s.State() == StateTerminated {
			return
		}

		payload, err := protocol.EncodeQuote(q)
		if err != nil {
			s.logger.Error("JSON Marshal Error", zap.Error(err))
			continue
		}

		if _, err := s.conn.Write(payload); err != nil {
			s.sendFailures.Add(1)
			s.logger.Debug("Datagram send failed", zap.String("ticker", q.Ticker), zap.Error(err))
			continue
		}
		s.sent.Add(1)
	}
}
