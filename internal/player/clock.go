package player

import (
	"sync/atomic"
	"time"
)

// Estimate extrapolates the playback position of s at instant now.
func Estimate(s Sample, now time.Time) float64 {
	if s.Rate <= 0 || s.At.IsZero() {
		return s.Elapsed
	}
	pos := s.Elapsed + now.Sub(s.At).Seconds()*s.Rate
	if pos < 0 {
		return 0
	}
	return pos
}

// Clock holds the latest playback sample and estimates the position between
// samples. The zero value is ready to use and reports 0.
type Clock struct {
	base atomic.Pointer[Sample]
}

// Rebase replaces the baseline. Readers see either the old or the new sample,
// never a mix of the two.
func (c *Clock) Rebase(s Sample) {
	c.base.Store(&s)
}

func (c *Clock) Reset() {
	c.base.Store(nil)
}

func (c *Clock) Now(now time.Time) float64 {
	s := c.base.Load()
	if s == nil {
		return 0
	}
	return Estimate(*s, now)
}
