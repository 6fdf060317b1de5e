package moment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Scope resolves $data references for one check.
type Scope interface {
	Resolve(ref DataRef) (any, bool)
}

// ErrorRecord describes a failed rule set. DataPath is the JSON pointer of
// the checked value in the document and SchemaPath the keyword location of
// the rule; both are empty when the caller did not say where it checked.
type ErrorRecord struct {
	Keyword    string
	DataPath   string
	SchemaPath string
	Data       any
	Message    string
}

// Program is a compiled rule set. It is immutable and safe for concurrent
// use.
type Program struct {
	lib      *Library
	formats  FormatSet
	invalid  string
	checks   []check
	climb    int
	absolute bool
}

type check struct {
	// outer is set when an operand needs data outside the checked value.
	outer    bool
	test     string
	args     []any
	compare  compareFunc
	operands []operand
}

type operand struct {
	now     bool
	ref     *DataRef
	literal string
	formats FormatSet
	steps   []manipulateFunc
}

func compileProgram(lib *Library, keyword string, rule *RuleSchema) (*Program, error) {
	p := &Program{lib: lib, formats: CompileFormats(rule.Format)}
	p.invalid = "should be a valid date"
	if len(rule.Format) > 0 {
		p.invalid += " with format " + renderJSON(rule.Format)
	}
	for i, v := range rule.Validate {
		c, err := p.compileCheck(v)
		if err != nil {
			return nil, fmt.Errorf("%s: validate[%d]: %w", keyword, i, err)
		}
		p.checks = append(p.checks, c)
	}
	return p, nil
}

func (p *Program) compileCheck(v Validation) (check, error) {
	cmp, ok := comparisons[v.Test]
	if !ok {
		return check{}, fmt.Errorf("%w %q", ErrUnknownTest, v.Test)
	}
	compare, err := cmp.compile(v.TestArgs)
	if err != nil {
		return check{}, err
	}
	c := check{test: v.Test, args: v.TestArgs, compare: compare}
	for _, val := range v.Value {
		op := operand{now: val.Now, ref: val.Ref, literal: val.Literal, formats: CompileFormats(val.Format)}
		if val.Ref != nil && !val.Now {
			if val.Ref.Absolute || val.Ref.Up > 0 {
				c.outer = true
			}
			if val.Ref.Absolute {
				p.absolute = true
			} else if val.Ref.Up > p.climb {
				p.climb = val.Ref.Up
			}
		}
		for _, m := range val.Manipulate {
			spec := manipulations[m.Method]
			if len(m.Args) < spec.minArgs || len(m.Args) > spec.maxArgs {
				return check{}, fmt.Errorf("%w: %s takes %d to %d arguments, got %d", ErrInvalidArguments, m.Method, spec.minArgs, spec.maxArgs, len(m.Args))
			}
			step, err := spec.compile(m.Args)
			if err != nil {
				return check{}, fmt.Errorf("%s: %w", m.Method, err)
			}
			op.steps = append(op.steps, step)
		}
		c.operands = append(c.operands, op)
	}
	return c, nil
}

// HasDataRefs reports whether the rule needs anything beyond the checked value.
func (p *Program) HasDataRefs() bool {
	return p.climb > 0 || p.absolute
}

// Check runs the rule set against data. Values that are not strings are not
// checked. Checks stop at the first failure, which is the one reported.
func (p *Program) Check(data any, scope Scope) *ErrorRecord {
	return p.run(data, scope, "", "", false)
}

// CheckAt is Check for a value at dataPath whose rule sits at schemaPath. A
// failure record carries both paths.
func (p *Program) CheckAt(data any, scope Scope, dataPath, schemaPath string) *ErrorRecord {
	return p.run(data, scope, dataPath, schemaPath, false)
}

// checkLocal parses the value and runs only the checks whose operands stay
// on it.
func (p *Program) checkLocal(data any, scope Scope, dataPath, schemaPath string) *ErrorRecord {
	return p.run(data, scope, dataPath, schemaPath, true)
}

func (p *Program) run(data any, scope Scope, dataPath, schemaPath string, local bool) *ErrorRecord {
	s, ok := data.(string)
	if !ok {
		return nil
	}
	fail := func(msg string) *ErrorRecord {
		return &ErrorRecord{Keyword: KeywordName, DataPath: dataPath, SchemaPath: schemaPath, Data: data, Message: msg}
	}
	subject := p.lib.ParseFormats(s, p.formats)
	if !subject.Valid() {
		return fail(p.invalid)
	}
	for _, c := range p.checks {
		if local && c.outer {
			continue
		}
		values := make([]Date, len(c.operands))
		for i, op := range c.operands {
			values[i] = op.materialize(p.lib, scope)
		}
		if !c.compare(p.lib, subject, values) {
			return fail(c.failure(s, values))
		}
	}
	return nil
}

func (op operand) materialize(lib *Library, scope Scope) Date {
	var d Date
	switch {
	case op.now:
		d = lib.Now()
	case op.ref != nil:
		d = invalidDate()
		if scope != nil {
			if v, ok := scope.Resolve(*op.ref); ok {
				if s, ok := dateInput(v); ok {
					d = lib.ParseFormats(s, op.formats)
				}
			}
		}
	default:
		d = lib.ParseFormats(op.literal, op.formats)
	}
	for _, step := range op.steps {
		d = step(lib, d)
	}
	return d
}

// dateInput renders referenced data the way a date parser sees it.
func dateInput(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func (c check) failure(data string, values []Date) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(c.test))
	if len(c.args) > 0 {
		b.WriteString(" with args ")
		b.WriteString(renderJSON(c.args))
	}
	b.WriteString(" validation failed for value(s): ")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%s)", data, v.ISO())
	}
	return b.String()
}

func renderJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
