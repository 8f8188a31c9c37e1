package parser

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/sales-manager/internal/domain/import/sniffer"
)

// ExcelParser parses XLSX workbooks. Only the active sheet is read.
type ExcelParser struct {
	schema Schema
}

// NewExcelParser creates a new Excel parser
func NewExcelParser(schema Schema) *ExcelParser {
	return &ExcelParser{schema: schema}
}

// Parse reads every row of the active sheet. The first row is a header and is
// skipped without validation. A workbook that cannot be opened is rejected
// like any other structural error.
func (p *ExcelParser) Parse(reader io.Reader) *ParseResult {
	f, err := excelize.OpenReader(reader, excelize.Options{RawCellValue: true})
	if err != nil {
		return rejected(0, ParseError{Row: 0, Message: "failed to open Excel file: " + err.Error()})
	}
	defer f.Close()

	sheet := activeSheet(f)
	if sheet == "" {
		return rejected(0, ParseError{Row: 0, Message: "workbook has no sheets"})
	}

	// Trailing empty cells are trimmed by excelize, so a blank last
	// column shows up as a short row.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return rejected(0, ParseError{Row: 0, Message: "failed to read sheet " + sheet + ": " + err.Error()})
	}

	if len(rows) == 0 {
		return &ParseResult{}
	}
	layout := sniffer.Fingerprint(rows[0])
	if len(rows) == 1 {
		return &ParseResult{Layout: layout}
	}

	records := make([][]any, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		record := make([]any, len(rows[i]))
		for j, raw := range rows[i] {
			record[j] = cellValue(f, sheet, j, i, raw)
		}
		records = append(records, record)
	}

	// +1 for 1-indexed lines, +1 for the header
	result := p.schema.parseRecords(records, 2)
	result.Layout = layout
	return result
}

func activeSheet(f *excelize.File) string {
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name
	}
	if sheets := f.GetSheetList(); len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

// cellValue types a raw cell: numbers become float64, booleans bool, the rest stays text.
// Cells without an explicit type are numbers in the OOXML format.
func cellValue(f *excelize.File, sheet string, col, row int, raw string) any {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}

	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return raw
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	case excelize.CellTypeBool:
		return raw == "1" || raw == "TRUE"
	}
	return raw
}
