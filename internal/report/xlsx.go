package report

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// loadExcel reads the first sheet of an Excel workbook. Headers live on
// Schema.HeaderRow; everything above is report preamble and is ignored.
func (fs *FileStore) loadExcel(path string) (*Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &FormatError{Path: path, Err: errors.New("workbook has no sheets")}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	if len(rows) < fs.Schema.HeaderRow {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("no header row at row %d", fs.Schema.HeaderRow)}
	}

	headers := rows[fs.Schema.HeaderRow-1]
	records := rows[fs.Schema.HeaderRow:]

	return newReport(path, fs.Schema, headers, records)
}

// saveExcel writes the changed status cells into the original workbook in
// place, the way a person would fill the ledger column by hand. Touching
// only those cells keeps the preamble, formatting and every other value
// untouched on disk.
func (fs *FileStore) saveExcel(r *Report) error {
	f, err := excelize.OpenFile(r.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", r.Path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return fmt.Errorf("workbook %s has no sheets", r.Path)
	}

	headerRow := fs.Schema.HeaderRow
	col := r.statusCol + 1

	if r.statusAdded {
		headerCell, err := excelize.CoordinatesToCellName(col, headerRow)
		if err != nil {
			return fmt.Errorf("bad status column position: %w", err)
		}
		if err := f.SetCellStr(sheet, headerCell, r.schema.Status); err != nil {
			return fmt.Errorf("failed to write status header: %w", err)
		}
	}

	for i := 0; i < r.Len(); i++ {
		if !r.dirty[i] {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col, headerRow+1+i)
		if err != nil {
			return fmt.Errorf("bad status cell position for row %d: %w", i, err)
		}
		if err := f.SetCellStr(sheet, cell, r.records[i][r.statusCol]); err != nil {
			return fmt.Errorf("failed to write status for row %d: %w", i, err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save %s: %w", r.Path, err)
	}
	return nil
}
