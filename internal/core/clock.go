package core

import "time"

// Clock supplies the reference time for default windows and cache expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

// SystemClock reads the wall clock in loc (UTC when nil).
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// MonthBounds returns the first and last calendar day of the month that
// contains now.
func MonthBounds(now time.Time) (Date, Date) {
	first := NewDate(now.Year(), int(now.Month()), 1)
	last := DateOf(first.AddDate(0, 1, -1))
	return first, last
}
