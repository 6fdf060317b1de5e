package moment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CatalogVersion identifies the set of operations below. Bump it whenever an
// operation is added, removed or changes arity.
const CatalogVersion = "1"

type compareFunc func(l *Library, subject Date, operands []Date) bool

type manipulateFunc func(l *Library, d Date) Date

type comparison struct {
	operands int
	maxArgs  int
	compile  func(args []any) (compareFunc, error)
}

type manipulation struct {
	minArgs int
	maxArgs int
	compile func(args []any) (manipulateFunc, error)
}

var comparisons = map[string]comparison{
	"isBefore":       {operands: 1, maxArgs: 1, compile: unitComparison((*Library).IsBefore)},
	"isAfter":        {operands: 1, maxArgs: 1, compile: unitComparison((*Library).IsAfter)},
	"isSame":         {operands: 1, maxArgs: 1, compile: unitComparison((*Library).IsSame)},
	"isSameOrBefore": {operands: 1, maxArgs: 1, compile: unitComparison((*Library).IsSameOrBefore)},
	"isSameOrAfter":  {operands: 1, maxArgs: 1, compile: unitComparison((*Library).IsSameOrAfter)},
	"isBetween":      {operands: 2, maxArgs: 2, compile: compileBetween},
}

var manipulations = map[string]manipulation{
	"add":         {minArgs: 1, maxArgs: 2, compile: compileShift(1)},
	"subtract":    {minArgs: 1, maxArgs: 2, compile: compileShift(-1)},
	"startOf":     {minArgs: 1, maxArgs: 1, compile: compileBoundary((*Library).StartOf)},
	"endOf":       {minArgs: 1, maxArgs: 1, compile: compileBoundary((*Library).EndOf)},
	"utc":         {compile: compileZone((*Library).UTC)},
	"local":       {compile: compileZone((*Library).Local)},
	"set":         {minArgs: 1, maxArgs: 2, compile: compileSet},
	"year":        {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitYear)},
	"month":       {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitMonth)},
	"date":        {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitDate)},
	"day":         {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitDay)},
	"hour":        {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitHour)},
	"minute":      {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitMinute)},
	"second":      {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitSecond)},
	"millisecond": {minArgs: 1, maxArgs: 1, compile: compileSetter(UnitMillisecond)},
}

// Comparisons lists the accepted "test" names.
func Comparisons() []string {
	return sortedKeys(comparisons)
}

// Manipulations lists the accepted "manipulate" operation names.
func Manipulations() []string {
	return sortedKeys(manipulations)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unitComparison(fn func(*Library, Date, Date, Unit) bool) func([]any) (compareFunc, error) {
	return func(args []any) (compareFunc, error) {
		var u Unit
		if len(args) > 0 {
			var err error
			if u, err = optionalUnit(args[0]); err != nil {
				return nil, err
			}
		}
		return func(l *Library, subject Date, operands []Date) bool {
			return fn(l, subject, operands[0], u)
		}, nil
	}
}

func compileBetween(args []any) (compareFunc, error) {
	var u Unit
	incl := defaultInclusivity
	if len(args) > 0 {
		var err error
		if u, err = optionalUnit(args[0]); err != nil {
			return nil, err
		}
	}
	if len(args) > 1 {
		s, ok := args[1].(string)
		if !ok || !Inclusivity(s).valid() {
			return nil, fmt.Errorf("%w: inclusivity must be one of (), [], [), (]", ErrInvalidArguments)
		}
		incl = Inclusivity(s)
	}
	return func(l *Library, subject Date, operands []Date) bool {
		return l.IsBetween(subject, operands[0], operands[1], u, incl)
	}, nil
}

// optionalUnit reads a unit argument where null means millisecond precision.
func optionalUnit(arg any) (Unit, error) {
	if arg == nil {
		return "", nil
	}
	s, ok := arg.(string)
	if !ok {
		return "", fmt.Errorf("%w: unit must be a string, got %v", ErrInvalidArguments, arg)
	}
	u, err := ParseUnit(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return u, nil
}

func compileShift(sign float64) func([]any) (manipulateFunc, error) {
	return func(args []any) (manipulateFunc, error) {
		dur, err := durationFromArgs(args)
		if err != nil {
			return nil, err
		}
		return func(l *Library, d Date) Date {
			return l.AddDuration(d, dur.scale(sign))
		}, nil
	}
}

// durationFromArgs accepts (amount, unit), (unit, amount), a lone amount in
// milliseconds, or an object of unit to amount.
func durationFromArgs(args []any) (Duration, error) {
	if len(args) == 1 {
		if obj, ok := args[0].(map[string]any); ok {
			return durationFromObject(obj)
		}
		if n, ok := toFloat(args[0]); ok {
			return durationOf(n, UnitMillisecond), nil
		}
		return Duration{}, fmt.Errorf("%w: expected an amount or an object of units", ErrInvalidArguments)
	}
	amount, unitArg := args[0], args[1]
	if _, ok := toFloat(amount); !ok {
		amount, unitArg = unitArg, amount
	}
	n, ok := toFloat(amount)
	if !ok {
		return Duration{}, fmt.Errorf("%w: amount must be a number, got %v", ErrInvalidArguments, args[0])
	}
	name, ok := unitArg.(string)
	if !ok {
		return Duration{}, fmt.Errorf("%w: unit must be a string, got %v", ErrInvalidArguments, unitArg)
	}
	u, err := ParseUnit(name)
	if err != nil {
		return Duration{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return durationOf(n, u), nil
}

func durationFromObject(obj map[string]any) (Duration, error) {
	var total Duration
	for name, v := range obj {
		u, err := ParseUnit(name)
		if err != nil {
			return Duration{}, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}
		n, ok := toFloat(v)
		if !ok {
			return Duration{}, fmt.Errorf("%w: %s must be a number", ErrInvalidArguments, name)
		}
		total = total.plus(durationOf(n, u))
	}
	return total, nil
}

func compileBoundary(fn func(*Library, Date, Unit) Date) func([]any) (manipulateFunc, error) {
	return func(args []any) (manipulateFunc, error) {
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: unit must be a string", ErrInvalidArguments)
		}
		u, err := ParseUnit(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
		}
		return func(l *Library, d Date) Date {
			return fn(l, d, u)
		}, nil
	}
}

func compileZone(fn func(*Library, Date) Date) func([]any) (manipulateFunc, error) {
	return func([]any) (manipulateFunc, error) {
		return func(l *Library, d Date) Date {
			return fn(l, d)
		}, nil
	}
}

// Fields assigned by set with an object, in this order.
var setOrder = []Unit{UnitYear, UnitMonth, UnitDate, UnitDay, UnitHour, UnitMinute, UnitSecond, UnitMillisecond}

func compileSet(args []any) (manipulateFunc, error) {
	if len(args) == 1 {
		obj, ok := args[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: set expects (unit, value) or an object", ErrInvalidArguments)
		}
		values := make(map[Unit]int, len(obj))
		for name, v := range obj {
			u, err := settableUnit(name)
			if err != nil {
				return nil, err
			}
			n, err := setterValue(u, v)
			if err != nil {
				return nil, err
			}
			values[u] = n
		}
		return func(l *Library, d Date) Date {
			for _, u := range setOrder {
				if n, ok := values[u]; ok {
					d = l.Set(d, u, n)
				}
			}
			return d
		}, nil
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unit must be a string", ErrInvalidArguments)
	}
	u, err := settableUnit(name)
	if err != nil {
		return nil, err
	}
	return compileSetter(u)(args[1:])
}

func settableUnit(name string) (Unit, error) {
	u, err := ParseUnit(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	for _, s := range setOrder {
		if s == u {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: %s cannot be set", ErrInvalidArguments, name)
}

func compileSetter(u Unit) func([]any) (manipulateFunc, error) {
	return func(args []any) (manipulateFunc, error) {
		n, err := setterValue(u, args[0])
		if err != nil {
			return nil, err
		}
		return func(l *Library, d Date) Date {
			return l.Set(d, u, n)
		}, nil
	}
}

// setterValue truncates numeric arguments. Month also accepts an English
// month name.
func setterValue(u Unit, v any) (int, error) {
	if s, ok := v.(string); ok && u == UnitMonth {
		if m, ok := lookupMonth(s, "", false); ok {
			return m, nil
		}
	}
	n, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidArguments, u, v)
	}
	return int(math.Trunc(n)), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && strings.TrimSpace(n) != ""
	}
	return 0, false
}
