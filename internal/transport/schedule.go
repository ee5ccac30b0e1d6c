package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ScheduleBackOff is a backoff.BackOff that walks a fixed list of delays and
// then stops.
type ScheduleBackOff struct {
	delays []time.Duration
	next   int
}

// Compile-time interface compliance check
var _ backoff.BackOff = (*ScheduleBackOff)(nil)

// NewScheduleBackOff creates a ScheduleBackOff over delays.
func NewScheduleBackOff(delays []time.Duration) *ScheduleBackOff {
	d := make([]time.Duration, len(delays))
	copy(d, delays)
	return &ScheduleBackOff{delays: d}
}

// NextBackOff returns the next delay, or backoff.Stop once the schedule is exhausted.
func (s *ScheduleBackOff) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

// Reset rewinds the schedule.
func (s *ScheduleBackOff) Reset() {
	s.next = 0
}
