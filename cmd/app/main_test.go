package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

const periodSchema = `{
	"type": "object",
	"properties": {
		"start": {"type": "string", "moment": true},
		"end": {"type": "string", "moment": {"validate": {"test": "isSameOrAfter", "value": {"$data": "1/start"}}}}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testLib() *moment.Library {
	return moment.NewLibrary(moment.WithLocation(time.UTC))
}

func TestRunCheckReportsEveryDocument(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.json", periodSchema)
	good := writeFile(t, dir, "good.json", `{"start":"2024-01-01","end":"2024-01-01"}`)
	bad := writeFile(t, dir, "bad.json", `{"start":"2024-02-01","end":"2024-01-01"}`)
	broken := writeFile(t, dir, "broken.json", `{"start":`)

	var out bytes.Buffer
	ok, err := runCheck(context.Background(), testLib(), schema, []string{good, bad, broken}, &out)
	if err != nil {
		t.Fatalf("run check: %v", err)
	}
	if ok {
		t.Fatal("expected failure with a bad document")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if !strings.HasPrefix(lines[0], "ok    ") || !strings.HasSuffix(lines[0], "good.json") {
		t.Fatalf("first line should report the good document in order: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "FAIL  ") || !strings.Contains(lines[2], `/end: "isSameOrAfter" validation failed`) {
		t.Fatalf("unexpected failure output:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[3], "ERROR ") || !strings.Contains(lines[3], "broken.json") {
		t.Fatalf("unexpected error line: %q", lines[3])
	}
}

func TestRunCheckAllValid(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.json", periodSchema)
	doc := writeFile(t, dir, "doc.json", `{"start":"2024-01-01T10:00:00Z","end":"2024-01-02T10:00:00Z"}`)

	var out bytes.Buffer
	ok, err := runCheck(context.Background(), testLib(), schema, []string{doc}, &out)
	if err != nil || !ok {
		t.Fatalf("expected success, ok=%v err=%v out=%s", ok, err, out.String())
	}
}

func TestRunCheckRejectsBadSchema(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.json", `{"moment":{"validate":{"test":"isFriday","value":{"now":true}}}}`)
	doc := writeFile(t, dir, "doc.json", `"2024-01-01"`)

	if _, err := runCheck(context.Background(), testLib(), schema, []string{doc}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := runCheck(context.Background(), testLib(), schema, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without documents")
	}
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{
		"sunday": time.Sunday,
		"Mon":    time.Monday,
		" SAT ":  time.Saturday,
	}
	for in, want := range cases {
		got, err := parseWeekday(in)
		if err != nil || got != want {
			t.Errorf("parseWeekday(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseWeekday("someday"); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestParseLocation(t *testing.T) {
	if loc, err := parseLocation("UTC"); err != nil || loc != time.UTC {
		t.Fatalf("utc: %v %v", loc, err)
	}
	if loc, err := parseLocation(""); err != nil || loc != time.Local {
		t.Fatalf("local: %v %v", loc, err)
	}
	if _, err := parseLocation("Mars/Olympus"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestCatalogCommandPrintsNames(t *testing.T) {
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	if err := cmd.Run(context.Background(), []string{"momentschema", "catalog"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "isBetween") || !strings.Contains(out.String(), "endOf") {
		t.Fatalf("catalog output incomplete: %s", out.String())
	}
}
