package script

import "errors"

var (
	ErrMissingName     = errors.New("script name is required")
	ErrDuplicateScript = errors.New("script with this name already exists")
	ErrUnknownType     = errors.New("unknown script type")
	ErrTypeCycle       = errors.New("type hierarchy contains a cycle")
	ErrUnknownScript   = errors.New("invocation names an unknown script")
	ErrTooManyArgs     = errors.New("invocation passes more arguments than the script declares")
	ErrPrimitiveBody   = errors.New("primitive scripts cannot have a body")
	ErrInvalidYAML     = errors.New("invalid YAML syntax")
	ErrKeywordName     = errors.New("script name is a reserved keyword")
)
