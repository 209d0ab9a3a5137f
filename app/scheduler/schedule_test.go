package scheduler_test

import (
	"testing"
	"time"

	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("EmptyForZeroRecipients", func(t *testing.T) {
		assert.Empty(t, scheduler.BuildSchedule(t0, 0, time.Minute, nil))
		assert.Empty(t, scheduler.BuildSchedule(t0, -3, time.Minute, nil))
	})

	t.Run("FixedDelay", func(t *testing.T) {
		got := scheduler.BuildSchedule(t0, 3, 60*time.Second, nil)
		assert.Equal(t, []time.Time{t0, t0.Add(60 * time.Second), t0.Add(120 * time.Second)}, got)
	})

	t.Run("NegativeDelayIsZero", func(t *testing.T) {
		got := scheduler.BuildSchedule(t0, 3, -time.Second, nil)
		assert.Equal(t, []time.Time{t0, t0, t0}, got)
	})

	t.Run("RateWindowsShiftByUnit", func(t *testing.T) {
		limit := &scheduler.RateLimit{Count: 2, Unit: models.RateLimitUnitMinute}
		got := scheduler.BuildSchedule(t0, 5, 10*time.Second, limit)
		require.Len(t, got, 5)
		assert.Equal(t, t0, got[0])
		assert.Equal(t, t0.Add(10*time.Second), got[1])
		assert.Equal(t, t0.Add(20*time.Second+time.Minute), got[2])
		assert.Equal(t, t0.Add(30*time.Second+time.Minute), got[3])
		assert.Equal(t, t0.Add(40*time.Second+2*time.Minute), got[4])
	})

	t.Run("WindowsShareOffset", func(t *testing.T) {
		const p = 3
		limit := &scheduler.RateLimit{Count: p, Unit: models.RateLimitUnitHour}
		got := scheduler.BuildSchedule(t0, 10, 0, limit)
		for i, at := range got {
			window := i / p
			assert.Equal(t, t0.Add(time.Duration(window)*time.Hour), at, "index %d", i)
		}
	})

	t.Run("MonthIsThirtyDays", func(t *testing.T) {
		limit := &scheduler.RateLimit{Count: 1, Unit: models.RateLimitUnitMonth}
		got := scheduler.BuildSchedule(t0, 2, 0, limit)
		assert.Equal(t, t0.Add(30*24*time.Hour), got[1])
	})

	t.Run("NonPositiveCapDisablesWindows", func(t *testing.T) {
		limit := &scheduler.RateLimit{Count: 0, Unit: models.RateLimitUnitDay}
		got := scheduler.BuildSchedule(t0, 3, time.Second, limit)
		assert.Equal(t, t0.Add(2*time.Second), got[2])
	})

	t.Run("NonDecreasingAndLengthN", func(t *testing.T) {
		limits := []*scheduler.RateLimit{
			nil,
			{Count: 1, Unit: models.RateLimitUnitMinute},
			{Count: 4, Unit: models.RateLimitUnitDay},
			{Count: 7, Unit: models.RateLimitUnitWeek},
		}
		for _, limit := range limits {
			for _, n := range []int{0, 1, 2, 9, 50} {
				for _, delay := range []time.Duration{0, time.Second, 90 * time.Second} {
					got := scheduler.BuildSchedule(t0, n, delay, limit)
					require.Len(t, got, n)
					for i := 1; i < len(got); i++ {
						assert.False(t, got[i].Before(got[i-1]), "n=%d delay=%s index %d", n, delay, i)
					}
				}
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		limit := &scheduler.RateLimit{Count: 2, Unit: models.RateLimitUnitHour}
		assert.Equal(t,
			scheduler.BuildSchedule(t0, 7, 5*time.Second, limit),
			scheduler.BuildSchedule(t0, 7, 5*time.Second, limit))
	})
}

func TestRateLimitOf(t *testing.T) {
	c := &models.Campaign{}
	assert.Nil(t, scheduler.RateLimitOf(c))

	c.RateLimitCount = utils.ToPtr(5)
	assert.Nil(t, scheduler.RateLimitOf(c), "cap without unit")

	c.RateLimitUnit = utils.ToPtr(models.RateLimitUnitHour)
	assert.Equal(t, &scheduler.RateLimit{Count: 5, Unit: models.RateLimitUnitHour}, scheduler.RateLimitOf(c))
}
