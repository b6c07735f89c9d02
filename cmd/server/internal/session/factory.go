package session

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

var ErrDeliverySocket = errors.New("cannot open delivery socket")

// Dialer opens the outbound socket for a delivery address.
type Dialer func(addr *net.UDPAddr) (Conn, error)

func DialUDP(addr *net.UDPAddr) (Conn, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Factory turns a validated STREAM command into a registered session.
type Factory struct {
	logger    *zap.Logger
	registry  Registry
	keepalive KeepAlive
	clock     Clock
	dial      Dialer
	timeout   time.Duration
	poll      time.Duration
}

func NewFactory(logger *zap.Logger, registry Registry, keepalive KeepAlive, clock Clock, dial Dialer, timeout, poll time.Duration) *Factory {
	if dial == nil {
		dial = DialUDP
	}
	return &Factory{
		logger:    logger,
		registry:  registry,
		keepalive: keepalive,
		clock:     clock,
		dial:      dial,
		timeout:   timeout,
		poll:      poll,
	}
}

// Create resolves the delivery address, opens its socket, and registers a
// new session. Errors are suitable as ERR reasons.
func (f *Factory) Create(cmd protocol.StreamCommand) (*Session, error) {
	addr, err := net.ResolveUDPAddr("udp", cmd.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", protocol.ErrInvalidAddress, cmd.Address)
	}

	conn, err := f.dial(addr)
	if err != nil {
		f.logger.Warn("Failed to open delivery socket", zap.Stringer("addr", addr), zap.Error(err))
		return nil, ErrDeliverySocket
	}

	return New(f.logger, Config{
		Addr:         addr,
		Tickers:      cmd.Tickers,
		Timeout:      f.timeout,
		PollInterval: f.poll,
	}, conn, f.registry, f.keepalive, f.clock), nil
}
