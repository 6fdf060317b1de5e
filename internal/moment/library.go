package moment

import (
	"time"
)

const isoOutputLayout = "2006-01-02T15:04:05.000Z"

// Library is the date library compiled programs run against. It is injected
// at registration and captured by every Program, so two compilers can use
// different zones or clocks side by side.
type Library struct {
	loc       *time.Location
	weekStart time.Weekday
	clock     func() time.Time
}

type Option func(*Library)

// WithLocation sets the zone used for inputs without an offset and for
// unit boundaries. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Library) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithWeekStart sets the first day of a "week" unit. Defaults to Sunday.
// The "isoWeek" unit always starts on Monday.
func WithWeekStart(day time.Weekday) Option {
	return func(l *Library) {
		l.weekStart = day
	}
}

// WithClock replaces time.Now as the source of "now" operands.
func WithClock(clock func() time.Time) Option {
	return func(l *Library) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLibrary returns a Library in the local zone with Sunday weeks and the
// system clock, adjusted by opts.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		loc:       time.Local,
		weekStart: time.Sunday,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location is the zone dates without an offset are read in.
func (l *Library) Location() *time.Location {
	return l.loc
}

// Now returns the current instant at millisecond precision.
func (l *Library) Now() Date {
	return Date{t: l.clock().In(l.loc).Truncate(time.Millisecond), valid: true}
}

// FromTime wraps t as a valid Date in the library's zone.
func (l *Library) FromTime(t time.Time) Date {
	return Date{t: t.In(l.loc).Truncate(time.Millisecond), valid: true}
}

// Date is an instant that may be invalid. The zero Date is invalid.
type Date struct {
	t     time.Time
	valid bool
}

// Valid reports whether d parsed.
func (d Date) Valid() bool {
	return d.valid
}

// Time returns the instant. It is the zero time for an invalid Date.
func (d Date) Time() time.Time {
	return d.t
}

// ISO renders d in UTC with millisecond precision.
func (d Date) ISO() string {
	if !d.valid {
		return "Invalid date"
	}
	return d.t.UTC().Format(isoOutputLayout)
}

func (d Date) String() string {
	return d.ISO()
}

func invalidDate() Date {
	return Date{}
}
