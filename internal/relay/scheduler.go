// internal/relay/scheduler.go
package relay

import "time"

// FlushGate enforces a minimum interval between flushes so that edits stay
// under the channel's rate limit. Not safe for concurrent use; the driver's
// flush loop is its only caller.
type FlushGate struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewFlushGate returns a gate with the given minimum inter-flush interval.
func NewFlushGate(interval time.Duration) *FlushGate {
	return &FlushGate{interval: interval, now: time.Now}
}

// Ready reports whether enough time has passed since the last flush.
func (g *FlushGate) Ready() bool {
	return g.last.IsZero() || g.now().Sub(g.last) >= g.interval
}

// Remaining returns how long until the gate opens again.
func (g *FlushGate) Remaining() time.Duration {
	if g.last.IsZero() {
		return 0
	}
	rem := g.interval - g.now().Sub(g.last)
	if rem < 0 {
		return 0
	}
	return rem
}

// Mark records that a flush just happened.
func (g *FlushGate) Mark() {
	g.last = g.now()
}
