// Package slot holds the primitives shared by the availability generator,
// the slot ledger and the booking engine.
package slot

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate  = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidClock = errors.New("time must be formatted as HH:MM")
)

// Date is a calendar day in the clinic's location, formatted YYYY-MM-DD.
// The layout sorts lexically in calendar order.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	return Date(t.In(loc).Format(DateLayout))
}

// Midnight returns the start of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, n).Format(DateLayout))
}

func (d Date) String() string { return string(d) }

// Clock is a time-of-day marker expressed in minutes after midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the minute-of-day of t, dropping seconds.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add advances the marker by d, truncated to whole minutes.
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// On places the marker on the given day.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	return d.Midnight(loc).Add(time.Duration(c) * time.Minute)
}

// Key identifies one bookable unit of a doctor's time.
type Key struct {
	DoctorID uuid.UUID
	Date     Date
	Time     Clock
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DoctorID, k.Date, k.Time)
}

// Compare orders keys by doctor, date, then time.
func (k Key) Compare(o Key) int {
	return cmp.Or(
		strings.Compare(k.DoctorID.String(), o.DoctorID.String()),
		cmp.Compare(k.Date, o.Date),
		cmp.Compare(k.Time, o.Time),
	)
}
