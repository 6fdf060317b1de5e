package moment

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// KeywordName is the schema keyword handled by this package.
const KeywordName = "moment"

var keywordMeta = jsonschema.MustCompileString("moment.json", `{
	"properties": {
		"moment": {
			"type": ["object", "boolean"],
			"properties": {
				"format": {
					"type": ["string", "array"],
					"items": {"type": "string"}
				},
				"validate": {"type": ["object", "array"]}
			}
		}
	}
}`)

// Keyword describes the registered keyword. Type is the only instance type
// it checks; Statements and Errors mirror the descriptor hosts expect from a
// keyword that reports its own errors.
type Keyword struct {
	Name       string
	Type       string
	Statements bool
	Errors     bool

	lib *Library
}

// Register installs the moment keyword on c. Every program compiled through
// c runs against lib.
func Register(c *jsonschema.Compiler, lib *Library) (*Keyword, error) {
	if c == nil {
		return nil, ErrMissingCompiler
	}
	if lib == nil {
		return nil, ErrMissingLibrary
	}
	k := &Keyword{
		Name:       KeywordName,
		Type:       "string",
		Statements: true,
		Errors:     true,
		lib:        lib,
	}
	c.RegisterExtension(KeywordName, keywordMeta, extCompiler{keyword: k})
	return k, nil
}

// Library returns the library the keyword's programs run against.
func (k *Keyword) Library() *Library {
	return k.lib
}

// Compile normalizes a raw keyword value and compiles it into a Program.
func (k *Keyword) Compile(raw any) (*Program, error) {
	rule, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k.Name, err)
	}
	return compileProgram(k.lib, k.Name, rule)
}
