package moment

import (
	"reflect"
	"testing"
)

func TestTokenizeFormat(t *testing.T) {
	got := tokenizeFormat("YYYY-[W]WW [at] h:mmA SSSS")
	want := []formatToken{
		{text: "YYYY"},
		{text: "-", literal: true},
		{text: "W", literal: true},
		{text: "WW"},
		{text: " ", literal: true},
		{text: "at", literal: true},
		{text: " ", literal: true},
		{text: "h"},
		{text: ":", literal: true},
		{text: "mm"},
		{text: "A"},
		{text: " ", literal: true},
		{text: "SSSS"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tokens:\n got %+v\nwant %+v", got, want)
	}
}

func TestParseISO(t *testing.T) {
	lib := newTestLibrary()
	cases := []struct {
		in   string
		want string
	}{
		{"2024-01-15", "2024-01-15T00:00:00.000Z"},
		{"2024-01-15T10:20:30.5+02:00", "2024-01-15T08:20:30.500Z"},
		{"2024-01-15 10:20", "2024-01-15T10:20:00.000Z"},
		{"2024-01-15T10:20:30,123456Z", "2024-01-15T10:20:30.123Z"},
		{"2024-01", "2024-01-01T00:00:00.000Z"},
		{"2024", "2024-01-01T00:00:00.000Z"},
		{"2024-W03-1", "2024-01-15T00:00:00.000Z"},
		{"2024-W03", "2024-01-15T00:00:00.000Z"},
		{"2024-046", "2024-02-15T00:00:00.000Z"},
		{"20240115T1020", "2024-01-15T10:20:00.000Z"},
		{"20240115", "2024-01-15T00:00:00.000Z"},
		{"+002024-01-15", "2024-01-15T00:00:00.000Z"},
		{"2024-01-15T24:00", "2024-01-16T00:00:00.000Z"},
		{"2024-01-15T10:00-0130", "2024-01-15T11:30:00.000Z"},
	}
	for _, tc := range cases {
		d := lib.Parse(tc.in)
		if !d.Valid() {
			t.Errorf("parse %q: invalid", tc.in)
			continue
		}
		if got := d.ISO(); got != tc.want {
			t.Errorf("parse %q = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseISORejects(t *testing.T) {
	lib := newTestLibrary()
	for _, in := range []string{
		"",
		"yesterday",
		"2024-02-30",
		"2024-13-01",
		"2024-01-15T25:00",
		"2024-01-15T24:30",
		"2024-01-15T10:61",
		"2024-01T10:00",
		"2024-W54-1",
		"2024-366x",
		"15/01/2024",
	} {
		if d := lib.Parse(in); d.Valid() {
			t.Errorf("parse %q: expected invalid, got %s", in, d.ISO())
		}
	}
}

func TestParseStrictFormats(t *testing.T) {
	lib := newTestLibrary()
	cases := []struct {
		in      string
		formats []string
		want    string
	}{
		{"2024", []string{"YYYY"}, "2024-01-01T00:00:00.000Z"},
		{"15/01/2024", []string{"DD/MM/YYYY"}, "2024-01-15T00:00:00.000Z"},
		{"2024-01-15", []string{"DD/MM/YYYY", "YYYY-MM-DD"}, "2024-01-15T00:00:00.000Z"},
		{"March 5th 2024", []string{"MMMM Do YYYY"}, "2024-03-05T00:00:00.000Z"},
		{"Mar 5 2024", []string{"MMM D YYYY"}, "2024-03-05T00:00:00.000Z"},
		{"2024-01-15 01:30 PM", []string{"YYYY-MM-DD hh:mm A"}, "2024-01-15T13:30:00.000Z"},
		{"2024-01-15 12:05 am", []string{"YYYY-MM-DD hh:mm a"}, "2024-01-15T00:05:00.000Z"},
		{"Tuesday 2024-01-16", []string{"dddd YYYY-MM-DD"}, "2024-01-16T00:00:00.000Z"},
		{"1700000000", []string{"X"}, "2023-11-14T22:13:20.000Z"},
		{"1700000000123", []string{"x"}, "2023-11-14T22:13:20.123Z"},
		{"69", []string{"YY"}, "1969-01-01T00:00:00.000Z"},
		{"68", []string{"YY"}, "2068-01-01T00:00:00.000Z"},
		{"2024 Q3", []string{"YYYY [Q]Q"}, "2024-07-01T00:00:00.000Z"},
		{"2024-01-15", []string{"ISO_8601"}, "2024-01-15T00:00:00.000Z"},
	}
	for _, tc := range cases {
		d := lib.Parse(tc.in, tc.formats...)
		if !d.Valid() {
			t.Errorf("parse %q with %v: invalid", tc.in, tc.formats)
			continue
		}
		if got := d.ISO(); got != tc.want {
			t.Errorf("parse %q with %v = %s, want %s", tc.in, tc.formats, got, tc.want)
		}
	}
}

func TestParseStrictRejects(t *testing.T) {
	lib := newTestLibrary()
	cases := []struct {
		in      string
		formats []string
	}{
		{"2024-01-15", []string{"YYYY"}},
		{"1/5/2024", []string{"DD/MM/YYYY"}},
		{"Monday 2024-01-16", []string{"dddd YYYY-MM-DD"}},
		{"2024-01-15 13:30", []string{"YYYY-MM-DD hh:mm"}},
		{"Marchy 5 2024", []string{"MMMM D YYYY"}},
		{"2024-01-15", []string{"DD/MM/YYYY"}},
	}
	for _, tc := range cases {
		if d := lib.Parse(tc.in, tc.formats...); d.Valid() {
			t.Errorf("parse %q with %v: expected invalid, got %s", tc.in, tc.formats, d.ISO())
		}
	}
}

func TestForgivingParseSkipsNoise(t *testing.T) {
	lib := newTestLibrary()
	fs := FormatSet{layouts: []layout{compileLayout("YYYY-MM-DD")}}
	d := lib.ParseFormats("due 2024-01-15!", fs)
	if !d.Valid() || d.ISO() != "2024-01-15T00:00:00.000Z" {
		t.Fatalf("unexpected forgiving parse: valid=%v %s", d.Valid(), d.ISO())
	}
	fs.strict = true
	if lib.ParseFormats("due 2024-01-15!", fs).Valid() {
		t.Fatal("strict parse must reject leftover characters")
	}
}

func TestParseDefaultsMissingParts(t *testing.T) {
	lib := newTestLibrary() // now is 2024-06-01T15:00Z
	cases := []struct {
		in     string
		format string
		want   string
	}{
		{"10:30", "HH:mm", "2024-06-01T10:30:00.000Z"},
		{"2023", "YYYY", "2023-01-01T00:00:00.000Z"},
		{"05", "MM", "2024-05-01T00:00:00.000Z"},
		{"17", "DD", "2024-06-17T00:00:00.000Z"},
	}
	for _, tc := range cases {
		if got := lib.Parse(tc.in, tc.format).ISO(); got != tc.want {
			t.Errorf("parse %q with %q = %s, want %s", tc.in, tc.format, got, tc.want)
		}
	}
}

func TestParsePicksBestFormat(t *testing.T) {
	lib := newTestLibrary()
	fs := FormatSet{layouts: []layout{compileLayout("YYYY"), compileLayout("YYYY-MM-DD")}}
	// Both formats match in forgiving mode; the one leaving nothing over wins.
	d := lib.ParseFormats("2024-03-09", fs)
	if d.ISO() != "2024-03-09T00:00:00.000Z" {
		t.Fatalf("unexpected best match: %s", d.ISO())
	}
}
