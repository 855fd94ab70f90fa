package patch

import (
	"fmt"
	"strings"
)

// FieldError locates one problem in the payload. Path is a JSON Pointer
// into the submitted document.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError rejects a payload before anything is written.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid patch"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		path := fe.Path
		if path == "" {
			path = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", path, fe.Reason))
	}
	return "invalid patch: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, reason string) {
	e.Errors = append(e.Errors, FieldError{Path: path, Reason: reason})
}

func (e *ValidationError) addf(path, format string, args ...any) {
	e.add(path, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

func invalid(path, reason string) error {
	return &ValidationError{Errors: []FieldError{{Path: path, Reason: reason}}}
}
