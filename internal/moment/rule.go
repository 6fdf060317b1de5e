package moment

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// RuleSchema is the normalized value of the "moment" keyword.
type RuleSchema struct {
	Format   []string
	Validate []Validation
}

// Validation is one relational assertion against the checked date.
type Validation struct {
	Test     string
	TestArgs []any
	Value    []Value
}

// Value describes how to obtain one comparison operand. Exactly one of Now,
// Ref or Literal applies, in that order of precedence.
type Value struct {
	Now        bool
	Ref        *DataRef
	Literal    string
	Format     []string
	Manipulate []Manipulation
}

// Manipulation is one named mutation applied to an operand.
type Manipulation struct {
	Method string
	Args   []any
}

type ruleWire struct {
	Format   []string `mapstructure:"format"`
	Validate any      `mapstructure:"validate"`
}

type validationWire struct {
	Test     string `mapstructure:"test"`
	TestArgs []any  `mapstructure:"testArgs"`
	Value    any    `mapstructure:"value"`
}

type valueWire struct {
	Now        bool             `mapstructure:"now"`
	Data       *string          `mapstructure:"$data"`
	Value      *string          `mapstructure:"value"`
	Format     []string         `mapstructure:"format"`
	Manipulate []map[string]any `mapstructure:"manipulate"`
}

// Normalize decodes a raw keyword value. A value that is not an object is an
// empty rule, which only checks that the string is a date.
func Normalize(raw any) (*RuleSchema, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return &RuleSchema{}, nil
	}
	var w ruleWire
	if err := decode(m, &w); err != nil {
		return nil, err
	}
	rule := &RuleSchema{Format: w.Format}

	var specs []any
	switch v := w.Validate.(type) {
	case nil:
	case []any:
		specs = v
	default:
		specs = []any{v}
	}
	for i, raw := range specs {
		spec, err := normalizeValidation(raw, rule.Format)
		if err != nil {
			return nil, fmt.Errorf("validate[%d]: %w", i, err)
		}
		rule.Validate = append(rule.Validate, spec)
	}
	return rule, nil
}

func normalizeValidation(raw any, formats []string) (Validation, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Validation{}, fmt.Errorf("%w: validation must be an object", ErrInvalidRule)
	}
	var w validationWire
	if err := decode(m, &w); err != nil {
		return Validation{}, err
	}
	cmp, ok := comparisons[w.Test]
	if w.Test == "" || !ok {
		return Validation{}, fmt.Errorf("%w %q", ErrUnknownTest, w.Test)
	}
	if isMissing(w.Value) {
		return Validation{}, fmt.Errorf("%w for %q", ErrMissingValue, w.Test)
	}

	var values []any
	if list, ok := w.Value.([]any); ok {
		values = list
	} else {
		values = []any{w.Value}
	}
	if len(values) != cmp.operands {
		return Validation{}, fmt.Errorf("%w: %q takes %d value(s), got %d", ErrInvalidArguments, w.Test, cmp.operands, len(values))
	}
	if len(w.TestArgs) > cmp.maxArgs {
		return Validation{}, fmt.Errorf("%w: %q takes at most %d testArgs, got %d", ErrInvalidArguments, w.Test, cmp.maxArgs, len(w.TestArgs))
	}

	spec := Validation{Test: w.Test, TestArgs: w.TestArgs}
	for i, v := range values {
		value, err := normalizeValue(v, formats)
		if err != nil {
			return Validation{}, fmt.Errorf("value[%d]: %w", i, err)
		}
		spec.Value = append(spec.Value, value)
	}
	return spec, nil
}

func normalizeValue(raw any, formats []string) (Value, error) {
	if s, ok := raw.(string); ok {
		return Value{Literal: s, Format: formats}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Value{}, fmt.Errorf("%w: value must be a string or an object", ErrInvalidRule)
	}
	var w valueWire
	if err := decode(m, &w); err != nil {
		return Value{}, err
	}

	v := Value{Now: w.Now, Format: w.Format}
	if v.Format == nil {
		v.Format = formats
	}
	switch {
	case w.Now:
	case w.Data != nil:
		ref, err := ParsePointer(*w.Data)
		if err != nil {
			return Value{}, err
		}
		v.Ref = &ref
	case w.Value != nil:
		v.Literal = *w.Value
	default:
		return Value{}, fmt.Errorf("%w: value needs one of now, $data or value", ErrMissingValue)
	}

	for i, entry := range w.Manipulate {
		if len(entry) != 1 {
			return Value{}, fmt.Errorf("%w: manipulate[%d] must name exactly one method", ErrUnsupportedManipulation, i)
		}
		for method, args := range entry {
			if _, ok := manipulations[method]; !ok {
				return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedManipulation, method)
			}
			list, ok := args.([]any)
			if !ok {
				list = []any{args}
			}
			v.Manipulate = append(v.Manipulate, Manipulation{Method: method, Args: list})
		}
	}
	return v, nil
}

func isMissing(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: singleStringToSlice,
		Result:     out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// singleStringToSlice lets "format": "YYYY" stand for ["YYYY"].
func singleStringToSlice(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf([]string(nil)) {
		return []string{data.(string)}, nil
	}
	return data, nil
}
