package moment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	relativePointer = regexp.MustCompile(`^(0|[1-9][0-9]*)(#|/.*)?$`)
	arrayIndex      = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
)

// DataRef is a parsed $data pointer. Absolute pointers start at the document
// root; relative pointers first climb Up levels from the value being checked.
type DataRef struct {
	Raw      string
	Absolute bool
	Up       int
	Tokens   []string
}

// ParsePointer accepts a JSON pointer ("/a/b") or a relative JSON pointer
// ("1/a/b"). The "#" form, which yields a key name, is not supported.
func ParsePointer(s string) (DataRef, error) {
	ref := DataRef{Raw: s}
	path := s
	if m := relativePointer.FindStringSubmatch(s); m != nil {
		if m[2] == "#" {
			return DataRef{}, fmt.Errorf("%w: %q: key references are not supported", ErrInvalidPointer, s)
		}
		up, err := strconv.Atoi(m[1])
		if err != nil {
			return DataRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidPointer, s, err)
		}
		ref.Up = up
		path = m[2]
	} else {
		if s != "" && s[0] != '/' {
			return DataRef{}, fmt.Errorf("%w: %q", ErrInvalidPointer, s)
		}
		ref.Absolute = true
	}
	if path == "" {
		return ref, nil
	}
	for _, tok := range strings.Split(path[1:], "/") {
		t, err := unescapeToken(tok)
		if err != nil {
			return DataRef{}, fmt.Errorf("%w: %q: %v", ErrInvalidPointer, s, err)
		}
		ref.Tokens = append(ref.Tokens, t)
	}
	return ref, nil
}

func unescapeToken(tok string) (string, error) {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '~' && (i+1 == len(tok) || (tok[i+1] != '0' && tok[i+1] != '1')) {
			return "", fmt.Errorf("invalid escape in %q", tok)
		}
	}
	return strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~"), nil
}

func escapeToken(tok string) string {
	return strings.ReplaceAll(strings.ReplaceAll(tok, "~", "~0"), "/", "~1")
}

func (r DataRef) String() string {
	return r.Raw
}

// lookup walks tokens from v. Array tokens must be canonical indexes.
func lookup(v any, tokens []string) (any, bool) {
	for _, tok := range tokens {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			if !arrayIndex.MatchString(tok) {
				return nil, false
			}
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}
