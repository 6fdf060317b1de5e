package moment

import (
	"math"
	"time"

	"github.com/jinzhu/now"
)

func (l *Library) calendar(u Unit) *now.Config {
	weekStart := l.weekStart
	if u == UnitISOWeek {
		weekStart = time.Monday
	}
	return &now.Config{WeekStartDay: weekStart, TimeLocation: l.loc}
}

// StartOf returns the first millisecond of the unit containing d.
func (l *Library) StartOf(d Date, u Unit) Date {
	if !d.valid {
		return d
	}
	d.t = l.startOf(d.t, u)
	return d
}

// EndOf returns the last millisecond of the unit containing d.
func (l *Library) EndOf(d Date, u Unit) Date {
	if !d.valid {
		return d
	}
	d.t = l.endOf(d.t, u)
	return d
}

func (l *Library) startOf(t time.Time, u Unit) time.Time {
	c := l.calendar(u).With(t)
	switch u.granularity() {
	case UnitYear:
		return c.BeginningOfYear()
	case UnitQuarter:
		return c.BeginningOfQuarter()
	case UnitMonth:
		return c.BeginningOfMonth()
	case UnitWeek, UnitISOWeek:
		return c.BeginningOfWeek()
	case UnitDay:
		return c.BeginningOfDay()
	case UnitHour:
		return c.BeginningOfHour()
	case UnitMinute:
		return c.BeginningOfMinute()
	case UnitSecond:
		return t.Truncate(time.Second)
	}
	return t
}

func (l *Library) endOf(t time.Time, u Unit) time.Time {
	c := l.calendar(u).With(t)
	var end time.Time
	switch u.granularity() {
	case UnitYear:
		end = c.EndOfYear()
	case UnitQuarter:
		end = c.EndOfQuarter()
	case UnitMonth:
		end = c.EndOfMonth()
	case UnitWeek, UnitISOWeek:
		end = c.EndOfWeek()
	case UnitDay:
		end = c.EndOfDay()
	case UnitHour:
		end = c.EndOfHour()
	case UnitMinute:
		end = c.EndOfMinute()
	case UnitSecond:
		return t.Truncate(time.Second).Add(time.Second - time.Millisecond)
	default:
		return t
	}
	return end.Truncate(time.Millisecond)
}

// Duration is a calendar-aware span. Months and days are rounded half away
// from zero when applied; milliseconds are an absolute offset.
type Duration struct {
	Months float64
	Days   float64
	Millis float64
}

func durationOf(n float64, u Unit) Duration {
	switch u.granularity() {
	case UnitYear:
		return Duration{Months: n * 12}
	case UnitQuarter:
		return Duration{Months: n * 3}
	case UnitMonth:
		return Duration{Months: n}
	case UnitWeek, UnitISOWeek:
		return Duration{Days: n * 7}
	case UnitDay:
		return Duration{Days: n}
	case UnitHour:
		return Duration{Millis: n * 3600000}
	case UnitMinute:
		return Duration{Millis: n * 60000}
	case UnitSecond:
		return Duration{Millis: n * 1000}
	}
	return Duration{Millis: n}
}

func (d Duration) plus(o Duration) Duration {
	return Duration{Months: d.Months + o.Months, Days: d.Days + o.Days, Millis: d.Millis + o.Millis}
}

func (d Duration) scale(f float64) Duration {
	return Duration{Months: d.Months * f, Days: d.Days * f, Millis: d.Millis * f}
}

// Add shifts d by amount units. Months clamp the day to the end of the
// target month.
func (l *Library) Add(d Date, amount float64, u Unit) Date {
	return l.AddDuration(d, durationOf(amount, u))
}

// AddDuration applies months, then days, then milliseconds.
func (l *Library) AddDuration(d Date, dur Duration) Date {
	if !d.valid {
		return d
	}
	if months := int(math.Round(dur.Months)); months != 0 {
		d.t = addMonths(d.t, months)
	}
	if days := int(math.Round(dur.Days)); days != 0 {
		d.t = d.t.AddDate(0, 0, days)
	}
	if dur.Millis != 0 {
		d.t = d.t.Add(time.Duration(math.Trunc(dur.Millis)) * time.Millisecond)
	}
	return d
}

func addMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	y, m, day := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	if isLeap(year) {
		return 366
	}
	return 365
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Set assigns one calendar field of d. Month is zero based and day is the
// weekday (Sunday = 0); out-of-range values roll over into the next unit.
func (l *Library) Set(d Date, u Unit, value int) Date {
	if !d.valid {
		return d
	}
	t := d.t
	y, m, day := t.Date()
	hh, mm, ss := t.Clock()
	ms := t.Nanosecond() / int(time.Millisecond)
	switch u {
	case UnitYear:
		if m == time.February && day == 29 && !isLeap(value) {
			day = 28
		}
		y = value
	case UnitMonth:
		target := time.Date(y, time.Month(value+1), 1, 0, 0, 0, 0, t.Location())
		if last := daysIn(target.Year(), target.Month()); day > last {
			day = last
		}
		y, m = target.Year(), target.Month()
	case UnitDate:
		day = value
	case UnitDay:
		d.t = t.AddDate(0, 0, value-int(t.Weekday()))
		return d
	case UnitHour:
		hh = value
	case UnitMinute:
		mm = value
	case UnitSecond:
		ss = value
	case UnitMillisecond:
		ms = value
	default:
		return d
	}
	d.t = time.Date(y, m, day, hh, mm, ss, 0, t.Location()).Add(time.Duration(ms) * time.Millisecond)
	return d
}

// UTC switches d into UTC; Local switches it back into the library zone.
// Only unit boundaries observe the difference.
func (l *Library) UTC(d Date) Date {
	d.t = d.t.UTC()
	return d
}

func (l *Library) Local(d Date) Date {
	d.t = d.t.In(l.loc)
	return d
}

// Inclusivity is the isBetween bracket pair: "()", "[]", "[)" or "(]".
type Inclusivity string

const defaultInclusivity Inclusivity = "()"

func (i Inclusivity) valid() bool {
	switch i {
	case "()", "[]", "[)", "(]":
		return true
	}
	return false
}

// IsBefore reports whether a ends before b starts, at unit granularity.
func (l *Library) IsBefore(a, b Date, u Unit) bool {
	if !a.valid || !b.valid {
		return false
	}
	if u == "" || u == UnitMillisecond {
		return a.t.Before(b.t)
	}
	return l.endOf(a.t, u).Before(b.t)
}

func (l *Library) IsAfter(a, b Date, u Unit) bool {
	if !a.valid || !b.valid {
		return false
	}
	if u == "" || u == UnitMillisecond {
		return a.t.After(b.t)
	}
	return b.t.Before(l.startOf(a.t, u))
}

// IsSame reports whether b falls inside the unit containing a.
func (l *Library) IsSame(a, b Date, u Unit) bool {
	if !a.valid || !b.valid {
		return false
	}
	if u == "" || u == UnitMillisecond {
		return a.t.Equal(b.t)
	}
	return !b.t.Before(l.startOf(a.t, u)) && !b.t.After(l.endOf(a.t, u))
}

func (l *Library) IsSameOrBefore(a, b Date, u Unit) bool {
	return l.IsSame(a, b, u) || l.IsBefore(a, b, u)
}

func (l *Library) IsSameOrAfter(a, b Date, u Unit) bool {
	return l.IsSame(a, b, u) || l.IsAfter(a, b, u)
}

func (l *Library) IsBetween(a, from, to Date, u Unit, incl Inclusivity) bool {
	if !a.valid || !from.valid || !to.valid {
		return false
	}
	if incl == "" {
		incl = defaultInclusivity
	}
	var lower, upper bool
	if incl[0] == '(' {
		lower = l.IsAfter(a, from, u)
	} else {
		lower = !l.IsBefore(a, from, u)
	}
	if incl[1] == ')' {
		upper = l.IsBefore(a, to, u)
	} else {
		upper = !l.IsAfter(a, to, u)
	}
	return lower && upper
}
