package scheduler

import (
	"time"

	"github.com/amirphl/orochi-outreach/models"
)

// RateLimit caps how many recipients fall into one window of Unit
type RateLimit struct {
	Count int
	Unit  models.RateLimitUnit
}

// RateLimitOf returns the campaign's cap, nil when none is configured
func RateLimitOf(c *models.Campaign) *RateLimit {
	count, unit, ok := c.RateLimit()
	if !ok {
		return nil
	}
	return &RateLimit{Count: count, Unit: unit}
}

// BuildSchedule returns one send time per recipient index i:
// t0 + i*delay, shifted by (i / Count) windows of Unit when a cap is set.
func BuildSchedule(t0 time.Time, n int, delay time.Duration, limit *RateLimit) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	if delay < 0 {
		delay = 0
	}

	var window time.Duration
	perWindow := 0
	if limit != nil && limit.Count > 0 {
		window = limit.Unit.Duration()
		perWindow = limit.Count
	}

	out := make([]time.Time, n)
	for i := range n {
		at := t0.Add(time.Duration(i) * delay)
		if perWindow > 0 {
			at = at.Add(time.Duration(i/perWindow) * window)
		}
		out[i] = at
	}
	return out
}
