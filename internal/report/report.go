package report

import (
	"strings"
)

// Row is one activity record, addressed by its 0-based data row index.
// Cell values are whitespace-trimmed on read; the underlying file bytes are
// kept untouched so saving never rewrites a cell nobody changed. Numeric
// interpretation happens in the classifier.
type Row struct {
	Index    int
	Asset    string
	Category string
	Distance string
	Runtime  string
	Status   string
}

// Report is a loaded activity report. Rows keep their file order; the only
// cells ever mutated are the status column, and only in memory until Save.
type Report struct {
	Path    string
	Headers []string

	schema      Schema
	records     [][]string
	cols        map[string]int
	statusCol   int
	statusAdded bool
	dirty       map[int]bool

	csvDelimiter  rune
	csvCRLF       bool
	csvTrailingNL bool
	headerRaw     string
	rawLines      []string
}

// newReport builds a Report from parsed headers and data records, validating
// the schema and ensuring the status column exists in memory.
func newReport(path string, schema Schema, headers []string, records [][]string) (*Report, error) {
	cols := make(map[string]int, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}

	var missing []string
	for _, name := range schema.required() {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Path: path, Missing: missing}
	}

	r := &Report{
		Path:    path,
		Headers: headers,
		schema:  schema,
		records: records,
		cols:    cols,
		dirty:   make(map[int]bool),
	}

	statusCol, ok := cols[schema.Status]
	if !ok {
		// Create the ledger column in memory; Save makes it durable. It goes
		// past every existing cell — headers and stray data beyond them
		// alike — so no original value is ever read as a status or
		// overwritten by one.
		statusCol = len(r.Headers)
		for _, rec := range records {
			if len(rec) > statusCol {
				statusCol = len(rec)
			}
		}
		for len(r.Headers) < statusCol {
			r.Headers = append(r.Headers, "")
		}
		r.Headers = append(r.Headers, schema.Status)
		r.cols[schema.Status] = statusCol
		r.statusAdded = true
	}
	r.statusCol = statusCol

	return r, nil
}

// Len returns the number of data rows.
func (r *Report) Len() int {
	return len(r.records)
}

// cell returns the trimmed value at a column, blank for short rows.
func (r *Report) cell(i, col int) string {
	rec := r.records[i]
	if col >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col])
}

// Row returns the record at the given 0-based data row index.
func (r *Report) Row(i int) Row {
	return Row{
		Index:    i,
		Asset:    r.cell(i, r.cols[r.schema.Asset]),
		Category: r.cell(i, r.cols[r.schema.Category]),
		Distance: r.cell(i, r.cols[r.schema.Distance]),
		Runtime:  r.cell(i, r.cols[r.schema.Runtime]),
		Status:   r.cell(i, r.statusCol),
	}
}

// Status returns the current status cell of a row.
func (r *Report) Status(i int) string {
	return r.cell(i, r.statusCol)
}

// SetStatus mutates the status cell in memory only; Save persists it. Only
// rows touched here are rewritten on disk.
func (r *Report) SetStatus(i int, value string) {
	rec := r.records[i]
	for len(rec) <= r.statusCol {
		rec = append(rec, "")
	}
	rec[r.statusCol] = value
	r.records[i] = rec
	r.dirty[i] = true
}
