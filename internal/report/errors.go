package report

import (
	"fmt"
	"strings"
)

// FormatError means the file could not be read as tabular data at all.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot read %s as a tabular report: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// SchemaError means the file parsed but required columns are missing.
type SchemaError struct {
	Path    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("report %s is missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
}
