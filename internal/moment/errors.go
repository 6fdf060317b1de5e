package moment

import "errors"

// Configuration errors. They are returned while registering the keyword or
// compiling a schema, never while validating a document.
var (
	ErrMissingCompiler         = errors.New("moment: register requires a jsonschema compiler")
	ErrMissingLibrary          = errors.New("moment: register requires a date library")
	ErrUnknownTest             = errors.New("invalid validation: unknown test")
	ErrMissingValue            = errors.New("invalid validation: missing value")
	ErrUnsupportedManipulation = errors.New("invalid validation value: unsupported manipulation method")
	ErrInvalidArguments        = errors.New("invalid validation: bad arguments")
	ErrInvalidPointer          = errors.New("invalid validation value: bad $data pointer")
	ErrUnknownUnit             = errors.New("unknown unit")
	ErrInvalidRule             = errors.New("invalid moment rule")
)
