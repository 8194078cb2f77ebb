package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
)

// loadCSV reads a CSV export of the activity report. The delimiter is
// sniffed from the header line (some exports use ';', others ','). The raw
// line bytes are kept alongside the parsed fields so Save can leave
// untouched rows exactly as they were.
func (fs *FileStore) loadCSV(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	text := string(data)
	crlf := strings.Contains(text, "\r\n")
	trailingNL := strings.HasSuffix(text, "\n")

	normalized := strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if normalized == "" {
		return nil, &FormatError{Path: path, Err: errors.New("empty file")}
	}
	lines := strings.Split(normalized, "\n")

	delim := sniffDelimiter(lines[0])

	headers, err := parseCSVLine(lines[0], delim)
	if err != nil {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("failed to read header: %w", err)}
	}

	rawLines := lines[1:]
	records := make([][]string, 0, len(rawLines))
	for i, line := range rawLines {
		if line == "" {
			records = append(records, nil)
			continue
		}
		record, err := parseCSVLine(line, delim)
		if err != nil {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("failed to read record %d: %w", i+1, err)}
		}
		records = append(records, record)
	}

	r, err := newReport(path, fs.Schema, headers, records)
	if err != nil {
		return nil, err
	}
	r.csvDelimiter = delim
	r.csvCRLF = crlf
	r.csvTrailingNL = trailingNL
	r.headerRaw = lines[0]
	r.rawLines = append([]string(nil), rawLines...)
	return r, nil
}

// saveCSV writes the file back with only the changed status cells spliced
// into their lines; every other byte comes straight from the loaded file.
func (fs *FileStore) saveCSV(r *Report) error {
	delim := r.csvDelimiter
	if delim == 0 {
		delim = ','
	}
	newline := "\n"
	if r.csvCRLF {
		newline = "\r\n"
	}

	lines := make([]string, 0, len(r.rawLines)+1)
	header := r.headerRaw
	if r.statusAdded {
		header = spliceField(header, delim, r.statusCol, csvField(r.schema.Status, delim))
	}
	lines = append(lines, header)

	for i, raw := range r.rawLines {
		if r.dirty[i] {
			raw = spliceField(raw, delim, r.statusCol, csvField(r.records[i][r.statusCol], delim))
		}
		lines = append(lines, raw)
	}

	out := strings.Join(lines, newline)
	if r.csvTrailingNL {
		out += newline
	}

	if err := os.WriteFile(r.Path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.Path, err)
	}
	return nil
}

func parseCSVLine(line string, delim rune) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	return reader.Read()
}

// spliceField replaces field idx of a raw CSV line, appending empty fields
// when the line has fewer. Quoted fields in the line are respected.
func spliceField(line string, delim rune, idx int, value string) string {
	start := 0
	field := 0
	inQuotes := false
	for i, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if c == delim && !inQuotes {
			if field == idx {
				return line[:start] + value + line[i:]
			}
			field++
			start = i + 1
		}
	}
	if field == idx {
		return line[:start] + value
	}

	var b strings.Builder
	b.WriteString(line)
	for ; field < idx; field++ {
		b.WriteRune(delim)
	}
	b.WriteString(value)
	return b.String()
}

// csvField quotes a value only when the delimiter or a quote forces it, so
// spliced cells match the unquoted style of the surrounding export.
func csvField(value string, delim rune) string {
	if strings.ContainsRune(value, delim) || strings.ContainsAny(value, "\"\r\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

func sniffDelimiter(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}
