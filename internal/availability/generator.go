// Package availability derives the candidate time slots a doctor offers over
// the rolling booking horizon. Nothing here is persisted: every call
// recomputes from the profile and the reference instant.
package availability

import (
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

const (
	DefaultHorizonDays = 7
	DefaultLeadTime    = time.Hour
	DefaultGranularity = 30 * time.Minute
)

// Profile is a doctor's availability as published by the doctor management
// side. The engine only reads it.
type Profile struct {
	DoctorID    uuid.UUID
	Name        string
	Speciality  string
	WorkStart   slot.Clock
	WorkEnd     slot.Clock
	Granularity time.Duration
	Accepting   bool
	Fee         decimal.Decimal
	Currency    string
}

type Options struct {
	HorizonDays int
	LeadTime    time.Duration
	Location    *time.Location
}

func DefaultOptions() Options {
	return Options{
		HorizonDays: DefaultHorizonDays,
		LeadTime:    DefaultLeadTime,
		Location:    time.UTC,
	}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) horizon() int {
	if o.HorizonDays <= 0 {
		return DefaultHorizonDays
	}
	return o.HorizonDays
}

// Day is one calendar day of candidate markers, in ascending order.
type Day struct {
	Date  slot.Date
	Times []slot.Clock
}

func (p Profile) step() slot.Clock {
	return slot.Clock(p.Granularity / time.Minute)
}

func (p Profile) usable() bool {
	return p.step() > 0 && p.WorkStart >= 0 && p.WorkEnd > p.WorkStart && p.WorkEnd <= 24*60
}

// Generate yields, for each day of the horizon starting today in the
// configured location, the markers of the doctor's working window at the
// profile granularity. A marker t is produced when the whole interval
// [t, t+granularity) fits the window. Today starts at FirstSameDay and is
// skipped when nothing is left.
//
// The sequence is restartable and has no side effects.
func Generate(p Profile, now time.Time, opts Options) iter.Seq[Day] {
	return func(yield func(Day) bool) {
		if !p.Accepting || !p.usable() {
			return
		}

		loc := opts.location()
		now = now.In(loc)
		today := slot.DateOf(now, loc)

		for i := 0; i < opts.horizon(); i++ {
			first := p.WorkStart
			if i == 0 {
				first = FirstSameDay(p, now, opts.LeadTime, loc)
			}

			times := p.markersFrom(first)
			if len(times) == 0 {
				continue
			}
			if !yield(Day{Date: today.AddDays(i), Times: times}) {
				return
			}
		}
	}
}

func (p Profile) markersFrom(first slot.Clock) []slot.Clock {
	step := p.step()
	var out []slot.Clock
	for t := first; t+step <= p.WorkEnd; t += step {
		out = append(out, t)
	}
	return out
}

// FirstSameDay returns the earliest marker that can still be offered today.
//
// The rule: take now + lead, round it up to the next whole minute, then up to
// the granularity grid anchored at the window start. A value already on the
// grid is kept. The result is never earlier than the window start. With a
// 10:00 start, 30 minute slots and a one hour lead, 09:10 gives 10:30 and
// 14:40 gives 16:00.
//
// The lead is applied to the instant and the result read off the wall clock,
// so daylight saving changes do not shorten or stretch it.
//
// A result past the window end means nothing is bookable today; the value can
// exceed 24:00 when the lead crosses midnight.
func FirstSameDay(p Profile, now time.Time, lead time.Duration, loc *time.Location) slot.Clock {
	if lead < 0 {
		lead = 0
	}
	now = now.In(loc)
	later := now.Add(lead).In(loc)

	earliest := slot.ClockOf(later)
	if later.Second() != 0 || later.Nanosecond() != 0 {
		earliest++
	}
	if slot.DateOf(later, loc) != slot.DateOf(now, loc) {
		earliest += 24 * 60
	}

	if earliest <= p.WorkStart {
		return p.WorkStart
	}

	step := p.step()
	if step <= 0 {
		return earliest
	}
	offset := earliest - p.WorkStart
	steps := (offset + step - 1) / step
	return p.WorkStart + steps*step
}

// Offers reports whether Generate would currently produce the marker on date.
func Offers(p Profile, now time.Time, opts Options, date slot.Date, t slot.Clock) bool {
	for day := range Generate(p, now, opts) {
		if day.Date == date {
			_, found := slices.BinarySearch(day.Times, t)
			return found
		}
		if day.Date > date {
			return false
		}
	}
	return false
}

// Filter drops the markers for which claimed reports true, and days left empty.
func Filter(days iter.Seq[Day], claimed func(slot.Date, slot.Clock) bool) iter.Seq[Day] {
	return func(yield func(Day) bool) {
		for day := range days {
			kept := make([]slot.Clock, 0, len(day.Times))
			for _, t := range day.Times {
				if !claimed(day.Date, t) {
					kept = append(kept, t)
				}
			}
			if len(kept) == 0 {
				continue
			}
			if !yield(Day{Date: day.Date, Times: kept}) {
				return
			}
		}
	}
}
