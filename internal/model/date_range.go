package model

import (
	"errors"
	"strings"
	"time"
)

// dayMillis is the length of a booking night in milliseconds.
const dayMillis int64 = 24 * 60 * 60 * 1000

// Errors returned by ParseDateRange.
var (
	ErrInvalidDate    = errors.New("invalid booking dates supplied")
	ErrEndBeforeStart = errors.New("end date must be after start date")
)

// DateRange is a half-open interval [Start, End) in UTC. Two ranges that
// only touch at a boundary do not overlap, so a checkout and a check-in
// can share a day.
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// ParseDateRange parses start and end as either YYYY-MM-DD (UTC midnight)
// or RFC 3339 timestamps and requires end to be after start.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := parseDate(start)
	if err != nil {
		return DateRange{}, ErrInvalidDate
	}
	e, err := parseDate(end)
	if err != nil {
		return DateRange{}, ErrInvalidDate
	}
	if !e.After(s) {
		return DateRange{}, ErrEndBeforeStart
	}
	return DateRange{Start: s, End: e}, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Nights returns the number of billable nights: the millisecond span
// divided by one day, rounded up. A partial day counts as a full night.
func (r DateRange) Nights() int64 {
	span := r.End.Sub(r.Start).Milliseconds()
	if span <= 0 {
		return 0
	}
	return (span + dayMillis - 1) / dayMillis
}

// Overlaps reports whether r and o intersect under half-open semantics.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.Before(o.End) && r.End.After(o.Start)
}
