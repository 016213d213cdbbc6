// Package clock provides the injectable time source OpStore uses to stamp
// local operations. Wall-clock time with a monotonic per-field bump is
// sufficient for LWW convergence (see the Timestamp source design note),
// but tests need to control "now" deterministically, so production and
// test code share one seam instead of calling time.Now() directly.
package clock

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Source yields the current time as milliseconds since epoch, the unit
// Operation.Timestamp is defined in.
type Source interface {
	NowMillis() int64
}

// real wraps a benbjohnson/clock.Clock backed by the system clock.
type real struct {
	c clock.Clock
}

// New returns a production Source backed by the real wall clock.
func New() Source {
	return &real{c: clock.New()}
}

func (r *real) NowMillis() int64 {
	return r.c.Now().UnixMilli()
}

// Mock wraps benbjohnson/clock.Mock so tests can freeze and advance time
// without racing the wall clock, in particular for the out-of-order
// delivery and cross-peer LWW-tie scenarios in the spec's property tests.
type Mock struct {
	c *clock.Mock
}

// NewMock returns a Source whose clock starts at the given instant and only
// advances when Add is called.
func NewMock(start time.Time) *Mock {
	m := clock.NewMock()
	m.Set(start)
	return &Mock{c: m}
}

func (m *Mock) NowMillis() int64 {
	return m.c.Now().UnixMilli()
}

// Add advances the mock clock by d.
func (m *Mock) Add(d time.Duration) {
	m.c.Add(d)
}
