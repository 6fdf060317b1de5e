package moment

import (
	"regexp"
	"sync"
)

var (
	extendedISO = regexp.MustCompile(`^\s*((?:[+-]\d{6}|\d{4})-(?:\d\d-\d\d|W\d\d-\d|W\d\d|\d\d\d|\d\d))(?:(T| )(\d\d(?::\d\d(?::\d\d(?:[.,]\d+)?)?)?)([+-]\d\d(?::?\d\d)?|\s*Z)?)?$`)
	basicISO    = regexp.MustCompile(`^\s*((?:[+-]\d{6}|\d{4})(?:\d\d\d\d|W\d\d\d|W\d\d|\d\d\d|\d\d|))(?:(T| )(\d\d(?:\d\d(?:\d\d(?:[.,]\d+)?)?)?)([+-]\d\d(?::?\d\d)?|\s*Z)?)?$`)
	isoZone     = regexp.MustCompile(`Z|[+-]\d\d(?::?\d\d)?`)
)

type isoPattern struct {
	format    string
	re        *regexp.Regexp
	allowTime bool
}

// Checked in order; the first match decides the date layout.
var isoDates = []isoPattern{
	{"YYYYYY-MM-DD", regexp.MustCompile(`[+-]\d{6}-\d\d-\d\d`), true},
	{"YYYY-MM-DD", regexp.MustCompile(`\d{4}-\d\d-\d\d`), true},
	{"GGGG-[W]WW-E", regexp.MustCompile(`\d{4}-W\d\d-\d`), true},
	{"GGGG-[W]WW", regexp.MustCompile(`\d{4}-W\d\d`), false},
	{"YYYY-DDD", regexp.MustCompile(`\d{4}-\d{3}`), true},
	{"YYYY-MM", regexp.MustCompile(`\d{4}-\d\d`), false},
	{"YYYYYYMMDD", regexp.MustCompile(`[+-]\d{10}`), true},
	{"YYYYMMDD", regexp.MustCompile(`\d{8}`), true},
	{"GGGG[W]WWE", regexp.MustCompile(`\d{4}W\d{3}`), true},
	{"GGGG[W]WW", regexp.MustCompile(`\d{4}W\d{2}`), false},
	{"YYYYDDD", regexp.MustCompile(`\d{7}`), true},
	{"YYYYMM", regexp.MustCompile(`\d{6}`), false},
	{"YYYY", regexp.MustCompile(`\d{4}`), false},
}

var isoTimes = []isoPattern{
	{"HH:mm:ss.SSSS", regexp.MustCompile(`\d\d:\d\d:\d\d\.\d+`), true},
	{"HH:mm:ss,SSSS", regexp.MustCompile(`\d\d:\d\d:\d\d,\d+`), true},
	{"HH:mm:ss", regexp.MustCompile(`\d\d:\d\d:\d\d`), true},
	{"HH:mm", regexp.MustCompile(`\d\d:\d\d`), true},
	{"HHmmss.SSSS", regexp.MustCompile(`\d\d\d\d\d\d\.\d+`), true},
	{"HHmmss,SSSS", regexp.MustCompile(`\d\d\d\d\d\d,\d+`), true},
	{"HHmmss", regexp.MustCompile(`\d\d\d\d\d\d`), true},
	{"HHmm", regexp.MustCompile(`\d\d\d\d`), true},
	{"HH", regexp.MustCompile(`\d\d`), true},
}

// Composed ISO layouts, keyed by format string.
var isoLayouts sync.Map

func isoLayout(format string) layout {
	if cached, ok := isoLayouts.Load(format); ok {
		return cached.(layout)
	}
	lay := layout{raw: format, tokens: tokenizeFormat(format)}
	isoLayouts.Store(format, lay)
	return lay
}

// parseISO recognizes the ISO-8601 shape of input, composes the matching
// token format and parses input with it.
func (l *Library) parseISO(input string, strict bool) *parseState {
	m := extendedISO.FindStringSubmatch(input)
	if m == nil {
		m = basicISO.FindStringSubmatch(input)
	}
	if m == nil {
		return &parseState{strict: strict, invalid: true}
	}

	var dateFormat string
	allowTime := false
	for _, d := range isoDates {
		if d.re.MatchString(m[1]) {
			dateFormat, allowTime = d.format, d.allowTime
			break
		}
	}
	if dateFormat == "" {
		return &parseState{strict: strict, invalid: true}
	}

	var timeFormat string
	if m[3] != "" {
		sep := m[2]
		if sep == "" {
			sep = " "
		}
		for _, t := range isoTimes {
			if t.re.MatchString(m[3]) {
				timeFormat = sep + t.format
				break
			}
		}
		if timeFormat == "" || !allowTime {
			return &parseState{strict: strict, invalid: true}
		}
	}

	var zoneFormat string
	if m[4] != "" {
		if !isoZone.MatchString(m[4]) {
			return &parseState{strict: strict, invalid: true}
		}
		zoneFormat = "Z"
	}
	return l.parseLayout(input, isoLayout(dateFormat+timeFormat+zoneFormat), strict)
}
