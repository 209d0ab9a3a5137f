// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// QuotaPeriod returns the monthly quota bucket for t
func QuotaPeriod(t time.Time) string {
	return t.UTC().Format(QuotaPeriodLayout)
}

// EndOfMonth returns the first instant of the month after t, in UTC
func EndOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
