package moment

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ISO8601 used as a format selects the ISO-8601 parser.
const ISO8601 = "ISO_8601"

// Indexes into parseState.a.
const (
	fieldYear = iota
	fieldMonth
	fieldDate
	fieldHour
	fieldMinute
	fieldSecond
	fieldMillisecond
)

type formatToken struct {
	text    string
	literal bool
}

type layout struct {
	raw    string
	iso    bool
	tokens []formatToken
}

func compileLayout(format string) layout {
	if format == ISO8601 {
		return layout{raw: format, iso: true}
	}
	return layout{raw: format, tokens: tokenizeFormat(format)}
}

// Longest first so "YYYY" wins over "YY" and "Y".
var knownTokens = []string{
	"YYYYYY", "YYYY", "GGGG", "MMMM", "DDDD", "dddd",
	"YY", "MMM", "DDD", "ddd",
	"MM", "Do", "DD", "dd", "WW", "HH", "hh", "kk", "mm", "ss", "ZZ",
	"Y", "M", "D", "d", "W", "E", "Q", "H", "h", "k", "m", "s", "A", "a", "Z", "X", "x",
}

func tokenizeFormat(format string) []formatToken {
	var out []formatToken
	for i := 0; i < len(format); {
		rest := format[i:]
		if rest[0] == '[' {
			segment := rest[1:]
			if next := strings.IndexByte(segment, '['); next >= 0 {
				segment = segment[:next]
			}
			if end := strings.LastIndexByte(segment, ']'); end >= 0 {
				out = append(out, formatToken{text: segment[:end], literal: true})
				i += end + 2
				continue
			}
		}
		if rest[0] == '\\' && len(rest) > 1 {
			tok := matchFormatToken(rest[1:])
			if tok == "" {
				_, size := utf8.DecodeRuneInString(rest[1:])
				tok = rest[1 : 1+size]
			}
			out = append(out, formatToken{text: tok, literal: true})
			i += 1 + len(tok)
			continue
		}
		if tok := matchFormatToken(rest); tok != "" {
			out = append(out, formatToken{text: tok})
			i += len(tok)
			continue
		}
		_, size := utf8.DecodeRuneInString(rest)
		out = append(out, formatToken{text: rest[:size], literal: true})
		i += size
	}
	return out
}

func matchFormatToken(s string) string {
	if n := len(s) - len(strings.TrimLeft(s, "S")); n > 0 {
		if n > 9 {
			n = 9
		}
		return s[:n]
	}
	for _, tok := range knownTokens {
		if strings.HasPrefix(s, tok) {
			return tok
		}
	}
	return ""
}

var (
	match1           = regexp.MustCompile(`\d`)
	match2           = regexp.MustCompile(`\d\d`)
	match3           = regexp.MustCompile(`\d{3}`)
	match4           = regexp.MustCompile(`\d{4}`)
	match6           = regexp.MustCompile(`[+-]\d{6}`)
	match1to2        = regexp.MustCompile(`\d\d?`)
	match1to3        = regexp.MustCompile(`\d{1,3}`)
	match1to4        = regexp.MustCompile(`\d{1,4}`)
	match1to6        = regexp.MustCompile(`[+-]?\d{1,6}`)
	matchUnsigned    = regexp.MustCompile(`\d+`)
	matchSigned      = regexp.MustCompile(`[+-]?\d+`)
	matchShortOffset = regexp.MustCompile(`(?i)Z|[+-]\d\d(?::?\d\d)?`)
	matchTimestamp   = regexp.MustCompile(`[+-]?\d+(?:\.\d{1,3})?`)
	matchWord        = regexp.MustCompile(`(?i)[a-z]+\.?`)
	matchMeridiem    = regexp.MustCompile(`(?i)[ap]\.?m?\.?`)
	matchOrdinal     = regexp.MustCompile(`\d{1,2}(?:st|nd|rd|th)?`)
	matchOrdinalStr  = regexp.MustCompile(`\d{1,2}(?:st|nd|rd|th)`)
)

type tokenSpec struct {
	lenient *regexp.Regexp
	strict  *regexp.Regexp
	apply   func(p *parseState, input, token string)
}

var tokenSpecs map[string]tokenSpec

func init() {
	setField := func(field int) func(*parseState, string, string) {
		return func(p *parseState, input, _ string) {
			p.set(field, atoi(input))
		}
	}
	year := func(p *parseState, input, _ string) {
		if len(input) == 2 {
			p.set(fieldYear, twoDigitYear(input))
			return
		}
		p.set(fieldYear, atoi(input))
	}
	month := func(p *parseState, input, _ string) {
		p.set(fieldMonth, atoi(input)-1)
	}
	monthName := func(p *parseState, input, token string) {
		m, ok := lookupMonth(input, token, p.strict)
		if !ok {
			p.invalidMonth = true
			return
		}
		p.set(fieldMonth, m)
	}
	weekdayName := func(p *parseState, input, token string) {
		d, ok := lookupWeekday(input, token, p.strict)
		if !ok {
			p.invalidWeekday = true
			return
		}
		p.week.day, p.week.hasDay, p.week.used = d, true, true
	}
	hour12 := func(p *parseState, input, _ string) {
		p.set(fieldHour, atoi(input))
		p.bigHour = true
	}
	hour24 := func(p *parseState, input, _ string) {
		h := atoi(input)
		if h == 24 {
			h = 0
		}
		p.set(fieldHour, h)
	}
	fraction := func(p *parseState, input, _ string) {
		digits := (input + "000")[:3]
		p.set(fieldMillisecond, atoi(digits))
	}
	dayOfYear := func(p *parseState, input, _ string) {
		p.dayOfYear, p.hasDayOfYear = atoi(input), true
	}
	offset := func(p *parseState, input, _ string) {
		p.useUTC = true
		p.tzm = offsetMinutes(input)
	}

	tokenSpecs = map[string]tokenSpec{
		"YYYYYY": {match1to6, match6, setField(fieldYear)},
		"YYYY":   {match1to4, match4, year},
		"YY":     {match1to2, match2, func(p *parseState, input, _ string) { p.set(fieldYear, twoDigitYear(input)) }},
		"Y":      {matchSigned, matchSigned, setField(fieldYear)},
		"Q": {match1, match1, func(p *parseState, input, _ string) {
			p.set(fieldMonth, (atoi(input)-1)*3)
		}},
		"M":    {match1to2, match1to2, month},
		"MM":   {match1to2, match2, month},
		"MMM":  {matchWord, matchWord, monthName},
		"MMMM": {matchWord, matchWord, monthName},
		"D":    {match1to2, match1to2, setField(fieldDate)},
		"DD":   {match1to2, match2, setField(fieldDate)},
		"Do": {matchOrdinal, matchOrdinalStr, func(p *parseState, input, _ string) {
			p.set(fieldDate, atoi(match1to2.FindString(input)))
		}},
		"DDD":  {match1to3, match1to3, dayOfYear},
		"DDDD": {match3, match3, dayOfYear},
		"d": {match1to2, match1to2, func(p *parseState, input, _ string) {
			p.week.day, p.week.hasDay, p.week.used = atoi(input), true, true
		}},
		"dd":   {matchWord, matchWord, weekdayName},
		"ddd":  {matchWord, matchWord, weekdayName},
		"dddd": {matchWord, matchWord, weekdayName},
		"E": {match1, match1, func(p *parseState, input, _ string) {
			p.week.isoDay, p.week.hasISODay, p.week.used = atoi(input), true, true
		}},
		"W": {match1to2, match1to2, func(p *parseState, input, _ string) {
			p.week.isoWeek, p.week.hasISOWeek, p.week.used = atoi(input), true, true
		}},
		"WW": {match1to2, match2, func(p *parseState, input, _ string) {
			p.week.isoWeek, p.week.hasISOWeek, p.week.used = atoi(input), true, true
		}},
		"GGGG": {match1to4, match4, func(p *parseState, input, _ string) {
			p.week.isoYear, p.week.hasISOYear, p.week.used = atoi(input), true, true
		}},
		"H":    {match1to2, match1to2, setField(fieldHour)},
		"HH":   {match1to2, match2, setField(fieldHour)},
		"h":    {match1to2, match1to2, hour12},
		"hh":   {match1to2, match2, hour12},
		"k":    {match1to2, match1to2, hour24},
		"kk":   {match1to2, match2, hour24},
		"m":    {match1to2, match1to2, setField(fieldMinute)},
		"mm":   {match1to2, match2, setField(fieldMinute)},
		"s":    {match1to2, match1to2, setField(fieldSecond)},
		"ss":   {match1to2, match2, setField(fieldSecond)},
		"S":    {match1to3, match1, fraction},
		"SS":   {match1to3, match2, fraction},
		"SSS":  {match1to3, match3, fraction},
		"SSSS": {matchUnsigned, matchUnsigned, fraction},
		"A": {matchMeridiem, matchMeridiem, func(p *parseState, input, _ string) {
			p.hasMeridiem = true
			p.pm = strings.ToLower(input)[0] == 'p'
		}},
		"Z":  {matchShortOffset, matchShortOffset, offset},
		"ZZ": {matchShortOffset, matchShortOffset, offset},
		"X": {matchTimestamp, matchTimestamp, func(p *parseState, input, _ string) {
			f, _ := strconv.ParseFloat(input, 64)
			p.unix, p.hasUnix = time.UnixMilli(int64(f*1000)), true
		}},
		"x": {matchSigned, matchSigned, func(p *parseState, input, _ string) {
			p.unix, p.hasUnix = time.UnixMilli(int64(atoi(input))), true
		}},
	}
	tokenSpecs["a"] = tokenSpecs["A"]
}

func specFor(token string) (tokenSpec, bool) {
	if len(token) > 4 && strings.Trim(token, "S") == "" {
		token = "SSSS"
	}
	spec, ok := tokenSpecs[token]
	return spec, ok
}

// atoi accepts a leading sign. Inputs come from the token regexes, so
// anything else is a programming error and reads as zero.
func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(s, "+"))
	return n
}

func twoDigitYear(s string) int {
	n := atoi(s)
	if n > 68 {
		return n + 1900
	}
	return n + 2000
}

func offsetMinutes(s string) int {
	if strings.EqualFold(s, "z") {
		return 0
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(s[1:], ":", "")
	minutes := atoi(digits[:2]) * 60
	if len(digits) >= 4 {
		minutes += atoi(digits[2:4])
	}
	return sign * minutes
}

var (
	monthsLong  = []string{"january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december"}
	monthsShort = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	daysLong    = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	daysShort   = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}
	daysMin     = []string{"su", "mo", "tu", "we", "th", "fr", "sa"}
)

func lookupMonth(input, token string, strict bool) (int, bool) {
	name := strings.ToLower(strings.TrimSuffix(input, "."))
	var tables [][]string
	switch {
	case !strict:
		tables = [][]string{monthsLong, monthsShort}
	case token == "MMMM":
		tables = [][]string{monthsLong}
	default:
		tables = [][]string{monthsShort}
	}
	return lookupName(name, tables)
}

func lookupWeekday(input, token string, strict bool) (int, bool) {
	name := strings.ToLower(strings.TrimSuffix(input, "."))
	var tables [][]string
	switch {
	case !strict:
		tables = [][]string{daysLong, daysShort, daysMin}
	case token == "dddd":
		tables = [][]string{daysLong}
	case token == "ddd":
		tables = [][]string{daysShort}
	default:
		tables = [][]string{daysMin}
	}
	return lookupName(name, tables)
}

func lookupName(name string, tables [][]string) (int, bool) {
	for _, table := range tables {
		for i, candidate := range table {
			if candidate == name {
				return i, true
			}
		}
	}
	return 0, false
}

type weekInfo struct {
	used       bool
	isoYear    int
	isoWeek    int
	isoDay     int
	day        int
	hasISOYear bool
	hasISOWeek bool
	hasISODay  bool
	hasDay     bool
}

// parseState carries the fields and flags gathered while matching one format.
type parseState struct {
	strict bool

	a   [7]int
	has [7]bool

	dayOfYear    int
	hasDayOfYear bool
	week         weekInfo

	hasMeridiem bool
	pm          bool
	useUTC      bool
	tzm         int
	unix        time.Time
	hasUnix     bool

	empty          bool
	bigHour        bool
	invalid        bool
	invalidMonth   bool
	invalidWeekday bool
	overflow       bool
	charsLeftOver  int
	unusedTokens   int

	t time.Time
}

func (p *parseState) set(field, v int) {
	p.a[field] = v
	p.has[field] = true
}

func (p *parseState) score() int {
	return p.charsLeftOver + 10*p.unusedTokens
}

func (p *parseState) valid() bool {
	if p.invalid || p.empty || p.overflow || p.invalidMonth || p.invalidWeekday {
		return false
	}
	if p.strict {
		return p.charsLeftOver == 0 && p.unusedTokens == 0 && !p.bigHour
	}
	return true
}

func (p *parseState) date() Date {
	if !p.valid() {
		return invalidDate()
	}
	return Date{t: p.t.Truncate(time.Millisecond), valid: true}
}

// FormatSet is a compiled, ordered list of accepted formats.
type FormatSet struct {
	formats []string
	layouts []layout
	strict  bool
}

// CompileFormats prepares formats for parsing. An empty list means the
// forgiving ISO-8601 parser; explicit formats parse strictly.
func CompileFormats(formats []string) FormatSet {
	if len(formats) == 0 {
		return FormatSet{layouts: []layout{compileLayout(ISO8601)}}
	}
	fs := FormatSet{formats: append([]string(nil), formats...), strict: true}
	for _, f := range formats {
		fs.layouts = append(fs.layouts, compileLayout(f))
	}
	return fs
}

// Formats returns the explicit formats, or nil for the ISO default.
func (fs FormatSet) Formats() []string {
	return fs.formats
}

func (fs FormatSet) Strict() bool {
	return fs.strict
}

// Parse reads s with formats. See CompileFormats for the strictness rule.
func (l *Library) Parse(s string, formats ...string) Date {
	return l.ParseFormats(s, CompileFormats(formats))
}

// ParseFormats tries every format and keeps the best match: a valid result
// beats an invalid one, then the fewest leftover characters and unused
// tokens win, then the earliest format.
func (l *Library) ParseFormats(s string, fs FormatSet) Date {
	if len(fs.layouts) == 0 {
		return invalidDate()
	}
	var best *parseState
	for _, lay := range fs.layouts {
		st := l.parseLayout(s, lay, fs.strict)
		switch {
		case best == nil:
			best = st
		case st.valid() && !best.valid():
			best = st
		case st.valid() == best.valid() && st.score() < best.score():
			best = st
		}
	}
	return best.date()
}

func (l *Library) parseLayout(input string, lay layout, strict bool) *parseState {
	if lay.iso {
		return l.parseISO(input, strict)
	}
	p := &parseState{strict: strict, empty: true}
	rest := input
	parsed := 0
	for _, tok := range lay.tokens {
		var matched string
		if tok.literal {
			if tok.text != "" {
				if idx := strings.Index(rest, tok.text); idx >= 0 {
					matched = tok.text
					rest = rest[idx+len(tok.text):]
				}
			}
			if matched == "" && strict {
				p.unusedTokens++
			}
			parsed += utf8.RuneCountInString(matched)
			continue
		}
		spec, ok := specFor(tok.text)
		if !ok {
			continue
		}
		re := spec.lenient
		if strict {
			re = spec.strict
		}
		if loc := re.FindStringIndex(rest); loc != nil && loc[1] > loc[0] {
			matched = rest[loc[0]:loc[1]]
			rest = rest[loc[1]:]
			parsed += utf8.RuneCountInString(matched)
		}
		if matched == "" {
			p.unusedTokens++
			continue
		}
		p.empty = false
		spec.apply(p, matched, tok.text)
	}
	p.charsLeftOver = utf8.RuneCountInString(input) - parsed
	l.resolve(p)
	return p
}

// resolve turns the collected fields into an instant and sets the overflow
// flag for out-of-range fields.
func (l *Library) resolve(p *parseState) {
	if p.bigHour && p.has[fieldHour] && p.a[fieldHour] > 0 && p.a[fieldHour] <= 12 {
		p.bigHour = false
	}
	if p.hasMeridiem && p.has[fieldHour] {
		switch h := p.a[fieldHour]; {
		case p.pm && h < 12:
			p.a[fieldHour] = h + 12
		case !p.pm && h == 12:
			p.a[fieldHour] = 0
		}
	}
	if p.hasUnix {
		p.t = p.unix.In(l.loc)
		return
	}

	loc := l.loc
	if p.useUTC {
		loc = time.UTC
	}
	now := l.clock().In(loc)
	current := [3]int{now.Year(), int(now.Month()) - 1, now.Day()}

	overflowDayOfYear := false
	if p.week.used && !p.has[fieldDate] && !p.has[fieldMonth] {
		if !l.dayOfYearFromWeek(p, now) {
			p.overflow = true
		}
	}
	if p.hasDayOfYear {
		y := current[0]
		if p.has[fieldYear] {
			y = p.a[fieldYear]
		}
		if p.dayOfYear > daysInYear(y) || p.dayOfYear == 0 {
			overflowDayOfYear = true
		}
		d := time.Date(y, time.January, p.dayOfYear, 0, 0, 0, 0, time.UTC)
		p.set(fieldYear, y)
		p.set(fieldMonth, int(d.Month())-1)
		p.set(fieldDate, d.Day())
	}

	i := 0
	for ; i < 3 && !p.has[i]; i++ {
		p.a[i] = current[i]
	}
	for ; i < 7; i++ {
		if !p.has[i] {
			if i == fieldDate {
				p.a[i] = 1
			} else {
				p.a[i] = 0
			}
		}
	}

	a := p.a
	nextDay := a[fieldHour] == 24 && a[fieldMinute] == 0 && a[fieldSecond] == 0 && a[fieldMillisecond] == 0
	if nextDay {
		a[fieldHour] = 0
	}
	t := time.Date(a[fieldYear], time.Month(a[fieldMonth]+1), a[fieldDate],
		a[fieldHour], a[fieldMinute], a[fieldSecond], a[fieldMillisecond]*int(time.Millisecond), loc)
	expectedWeekday := int(t.Weekday())
	if p.tzm != 0 {
		t = t.Add(-time.Duration(p.tzm) * time.Minute)
	}
	t = t.In(l.loc)
	if nextDay {
		t = t.AddDate(0, 0, 1)
	}
	p.t = t

	if p.week.hasDay && p.week.day != expectedWeekday {
		p.invalid = true
	}
	if overflowDayOfYear || fieldsOverflow(p.a) {
		p.overflow = true
	}
}

func fieldsOverflow(a [7]int) bool {
	switch {
	case a[fieldMonth] < 0 || a[fieldMonth] > 11:
		return true
	case a[fieldDate] < 1 || a[fieldDate] > daysIn(a[fieldYear], time.Month(a[fieldMonth]+1)):
		return true
	case a[fieldHour] < 0 || a[fieldHour] > 24:
		return true
	case a[fieldHour] == 24 && (a[fieldMinute] != 0 || a[fieldSecond] != 0 || a[fieldMillisecond] != 0):
		return true
	case a[fieldMinute] < 0 || a[fieldMinute] > 59:
		return true
	case a[fieldSecond] < 0 || a[fieldSecond] > 59:
		return true
	case a[fieldMillisecond] < 0 || a[fieldMillisecond] > 999:
		return true
	}
	return false
}

// dayOfYearFromWeek fills year, month and date from week tokens. It reports
// false when the week or weekday is out of range.
func (l *Library) dayOfYearFromWeek(p *parseState, now time.Time) bool {
	w := p.week
	if w.hasISOYear || w.hasISOWeek || w.hasISODay {
		year, _ := now.ISOWeek()
		if w.hasISOYear {
			year = w.isoYear
		} else if p.has[fieldYear] {
			year = p.a[fieldYear]
		}
		week, day := 1, 1
		if w.hasISOWeek {
			week = w.isoWeek
		}
		if w.hasISODay {
			day = w.isoDay
		}
		if week < 1 || week > isoWeeksInYear(year) || day < 1 || day > 7 {
			return false
		}
		d := isoWeekStart(year).AddDate(0, 0, (week-1)*7+day-1)
		p.set(fieldYear, d.Year())
		p.set(fieldMonth, int(d.Month())-1)
		p.set(fieldDate, d.Day())
		return true
	}
	if w.day < 0 || w.day > 6 {
		return false
	}
	start := l.startOf(now, UnitWeek)
	offset := (w.day - int(l.weekStart) + 7) % 7
	d := start.AddDate(0, 0, offset)
	p.set(fieldYear, d.Year())
	p.set(fieldMonth, int(d.Month())-1)
	p.set(fieldDate, d.Day())
	return true
}

// isoWeekStart returns the Monday of ISO week 1 of year.
func isoWeekStart(year int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset)
}

func isoWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
