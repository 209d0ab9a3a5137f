package scheduler

import (
	"time"

	"github.com/amirphl/orochi-outreach/models"
)

// Occurrence returns the k-th occurrence after start (k >= 0), nil for non-recurring campaigns.
// Monthly steps keep the day of month of start, clamped to the target month's last day.
func Occurrence(rec models.Recurrence, start time.Time, k int) *time.Time {
	if k < 0 {
		return nil
	}
	var next time.Time
	switch rec {
	case models.RecurrenceDaily:
		next = start.AddDate(0, 0, k)
	case models.RecurrenceWeekly:
		next = start.AddDate(0, 0, 7*k)
	case models.RecurrenceMonthly:
		next = addMonthsClamped(start, k)
	default:
		return nil
	}
	return &next
}

// NextOccurrence returns the occurrence following ref, nil when rec does not repeat
func NextOccurrence(rec models.Recurrence, ref time.Time) *time.Time {
	return Occurrence(rec, ref, 1)
}

// NextOccurrenceAfter returns the first occurrence of the series anchored at start
// that is strictly after after. Occurrences at or before after are skipped.
func NextOccurrenceAfter(rec models.Recurrence, start, after time.Time) *time.Time {
	first := Occurrence(rec, start, 1)
	if first == nil {
		return nil
	}
	if first.After(after) {
		return first
	}

	k := estimateSteps(rec, start, after)
	if k < 1 {
		k = 1
	}
	// step back until the occurrence is not after `after`, then forward to the first one that is
	for k > 1 {
		if occ := Occurrence(rec, start, k); occ.After(after) {
			k--
			continue
		}
		break
	}
	for {
		occ := Occurrence(rec, start, k)
		if occ.After(after) {
			return occ
		}
		k++
	}
}

func estimateSteps(rec models.Recurrence, start, after time.Time) int {
	switch rec {
	case models.RecurrenceDaily:
		return int(after.Sub(start)/(24*time.Hour)) + 1
	case models.RecurrenceWeekly:
		return int(after.Sub(start)/(7*24*time.Hour)) + 1
	case models.RecurrenceMonthly:
		months := (after.Year()-start.Year())*12 + int(after.Month()) - int(start.Month())
		return months + 1
	default:
		return 1
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	// day 0 of the month after the target is the target's last day
	lastDay := time.Date(y, m+time.Month(months)+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(y, m+time.Month(months), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
