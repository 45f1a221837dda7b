package extract

import (
	"fmt"
	"strings"
)

// ExtractionError means the external tool failed or produced nothing usable
type ExtractionError struct {
	Path   string
	Tool   string
	Stderr string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s failed for %s", e.Tool, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParseError lists required fields that were absent from otherwise usable output
type ParseError struct {
	Path   string
	Fields []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %s in %s", strings.Join(e.Fields, ", "), e.Path)
}
