package session

import (
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/liveness"
)

// Conn is the session's outbound datagram socket, connected to the
// subscriber's delivery address.
type Conn interface {
	Write(b []byte) (int, error)
	Close() error
}

// Registry is the hub side of a session.
type Registry interface {
	Register(filter hub.Filter) *hub.Handle
	Deregister(handle *hub.Handle)
}

// KeepAlive is the liveness monitor side of a session.
type KeepAlive interface {
	Register(addr netip.AddrPort, id uuid.UUID, tracker *liveness.Tracker)
	Deregister(addr netip.AddrPort, id uuid.UUID)
}

// for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type Stats struct {
	Sent         uint64
	SendFailures uint64
	Filtered     uint64
	Dropped      uint64 // batches the hub dropped for this session
}
