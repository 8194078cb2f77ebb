package report

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileStore loads and saves activity reports, picking the codec from the
// file extension. Saving always writes back to the path the report was
// loaded from, so the spreadsheet itself remains the processing ledger.
type FileStore struct {
	Schema Schema
}

// NewFileStore creates a store for the given report schema.
func NewFileStore(schema Schema) *FileStore {
	if schema.HeaderRow < 1 {
		schema.HeaderRow = 1
	}
	return &FileStore{Schema: schema}
}

// Load reads the report at path. It fails with *FormatError when the file
// cannot be parsed and *SchemaError when required columns are absent.
func (fs *FileStore) Load(path string) (*Report, error) {
	switch ext(path) {
	case ".xlsx", ".xlsm":
		return fs.loadExcel(path)
	case ".csv":
		return fs.loadCSV(path)
	default:
		return nil, &FormatError{Path: path, Err: fmt.Errorf("unsupported file type %q", ext(path))}
	}
}

// Save writes the report back to its source path, preserving all original
// columns and row order; only status cells (and a newly created status
// header) change on disk.
func (fs *FileStore) Save(r *Report) error {
	switch ext(r.Path) {
	case ".xlsx", ".xlsm":
		return fs.saveExcel(r)
	case ".csv":
		return fs.saveCSV(r)
	default:
		return fmt.Errorf("unsupported file type %q", ext(r.Path))
	}
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
