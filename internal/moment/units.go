package moment

import (
	"fmt"
	"strings"
)

// Unit is a normalized calendar unit.
type Unit string

const (
	UnitYear        Unit = "year"
	UnitQuarter     Unit = "quarter"
	UnitMonth       Unit = "month"
	UnitWeek        Unit = "week"
	UnitISOWeek     Unit = "isoWeek"
	UnitDay         Unit = "day"
	UnitDate        Unit = "date"
	UnitHour        Unit = "hour"
	UnitMinute      Unit = "minute"
	UnitSecond      Unit = "second"
	UnitMillisecond Unit = "millisecond"
)

// Short aliases are case sensitive ("M" is month, "m" is minute); long
// forms are matched case-insensitively with an optional plural "s".
var unitAliases = map[string]Unit{
	"y":  UnitYear,
	"Q":  UnitQuarter,
	"M":  UnitMonth,
	"w":  UnitWeek,
	"W":  UnitISOWeek,
	"d":  UnitDay,
	"D":  UnitDate,
	"h":  UnitHour,
	"m":  UnitMinute,
	"s":  UnitSecond,
	"ms": UnitMillisecond,
}

var unitNames = map[string]Unit{
	"year":        UnitYear,
	"quarter":     UnitQuarter,
	"month":       UnitMonth,
	"week":        UnitWeek,
	"isoweek":     UnitISOWeek,
	"day":         UnitDay,
	"date":        UnitDate,
	"hour":        UnitHour,
	"minute":      UnitMinute,
	"second":      UnitSecond,
	"millisecond": UnitMillisecond,
}

// ParseUnit normalizes a unit name or alias.
func ParseUnit(s string) (Unit, error) {
	if u, ok := unitAliases[s]; ok {
		return u, nil
	}
	name := strings.ToLower(s)
	if u, ok := unitNames[name]; ok {
		return u, nil
	}
	if u, ok := unitNames[strings.TrimSuffix(name, "s")]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// granularity maps units that share boundaries onto one another.
func (u Unit) granularity() Unit {
	if u == UnitDate {
		return UnitDay
	}
	return u
}
