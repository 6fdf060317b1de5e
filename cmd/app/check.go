package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
	"github.com/atvirokodosprendimai/momentschema/internal/core/usecase"
	"github.com/atvirokodosprendimai/momentschema/internal/moment"
)

type checkResult struct {
	path       string
	violations []domain.Violation
	err        error
}

// runCheck validates every document in paths against the schema file and
// writes one line per document. It reports false when any document failed.
func runCheck(ctx context.Context, lib *moment.Library, schemaPath string, paths []string, out io.Writer) (bool, error) {
	if out == nil {
		out = os.Stdout
	}
	if len(paths) == 0 {
		return false, errors.New("check: no documents given")
	}

	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		return false, fmt.Errorf("read schema: %w", err)
	}
	sch, err := usecase.CompileSchema(lib, raw)
	if err != nil {
		return false, fmt.Errorf("compile %s: %w", schemaPath, err)
	}

	results := make([]checkResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i].path = path
			doc, err := os.ReadFile(path)
			if err != nil {
				results[i].err = err
				return nil
			}
			err = usecase.ValidateDocument(sch, doc)
			var violation *domain.ErrSchemaViolation
			if errors.As(err, &violation) {
				results[i].violations = violation.Violations
				return nil
			}
			results[i].err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	ok := true
	for _, res := range results {
		switch {
		case res.err != nil:
			ok = false
			fmt.Fprintf(out, "ERROR %s: %v\n", res.path, res.err)
		case len(res.violations) > 0:
			ok = false
			fmt.Fprintf(out, "FAIL  %s\n", res.path)
			for _, v := range res.violations {
				fmt.Fprintf(out, "      %s\n", v)
			}
		default:
			fmt.Fprintf(out, "ok    %s\n", res.path)
		}
	}
	return ok, nil
}

func printCatalog(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "catalog version %s\n", moment.CatalogVersion)
	fmt.Fprintf(out, "tests: %s\n", strings.Join(moment.Comparisons(), ", "))
	fmt.Fprintf(out, "manipulations: %s\n", strings.Join(moment.Manipulations(), ", "))
}

func parseLocation(name string) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if want == full || want == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("week start %q: not a weekday", name)
}
