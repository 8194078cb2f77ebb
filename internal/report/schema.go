package report

// Schema maps the logical fields of an activity report to column headers.
// It is validated once at load time; a missing required column is a
// *SchemaError before any row is processed.
type Schema struct {
	// HeaderRow is the 1-based row holding the headers in Excel files.
	// CSV exports carry their headers on the first line regardless.
	HeaderRow int

	Asset    string
	Category string
	Distance string
	Runtime  string
	Status   string
}

// DefaultSchema matches the RSV activity report: 8 preamble rows, Spanish
// headers, "Estado" as the processing ledger column.
func DefaultSchema() Schema {
	return Schema{
		HeaderRow: 9,
		Asset:     "Interno",
		Category:  "Categoría",
		Distance:  "Km",
		Runtime:   "Tiempo de marcha",
		Status:    "Estado",
	}
}

// required lists the columns that must be present in the file. The status
// column is not required: it is created in memory when absent.
func (s Schema) required() []string {
	return []string{s.Asset, s.Category, s.Distance, s.Runtime}
}
