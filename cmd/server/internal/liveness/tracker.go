package liveness

import (
	"sync/atomic"
	"time"
)

// Tracker holds the time of a session's most recent keep-alive signal.
// It is written by the monitor and read by the session loop.
type Tracker struct {
	last atomic.Int64 // unix nano
}

func NewTracker(now time.Time) *Tracker {
	t := &Tracker{}
	t.last.Store(now.UnixNano())
	return t
}

func (t *Tracker) Touch(now time.Time) {
	t.last.Store(now.UnixNano())
}

func (t *Tracker) Last() time.Time {
	return time.Unix(0, t.last.Load())
}

// Expired reports now - last > timeout.
func (t *Tracker) Expired(now time.Time, timeout time.Duration) bool {
	return now.UnixNano()-t.last.Load() > int64(timeout)
}
