package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/sales-manager/internal/domain/import/sniffer"
)

// salesRecord is one CSV line in the default column order.
// Columns are matched by position, header names are never read.
type salesRecord struct {
	Product  string `csv:"product"`
	Category string `csv:"category"`
	Sold     string `csv:"sold"`
	Cost     string `csv:"cost"`
	Total    string `csv:"total"`
}

func (r salesRecord) cells() []any {
	return []any{r.Product, r.Category, r.Sold, r.Cost, r.Total}
}

// CSVParser parses CSV exports laid out like the default schema.
// The delimiter is detected from the header line.
type CSVParser struct {
	schema Schema
}

// NewCSVParser creates a CSV parser for the default layout.
func NewCSVParser(currency string) *CSVParser {
	return &CSVParser{schema: DefaultSchema(currency)}
}

// Parse reads all lines. Width and conversion errors reject the whole file.
func (p *CSVParser) Parse(reader io.Reader) *ParseResult {
	data, err := io.ReadAll(reader)
	if err != nil {
		return rejected(0, ParseError{Message: "failed to read CSV: " + err.Error()})
	}
	data = sniffer.Normalize(data)

	delimiter, _ := sniffer.DetectDelimiter(sniffer.HeaderLine(data))
	if delimiter == 0 {
		delimiter = ','
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	// The header may have any width; data lines may not
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseResult{}
		}
		return rejected(0, ParseError{Row: 1, Message: err.Error()})
	}
	r.FieldsPerRecord = p.schema.Len()
	layout := sniffer.Fingerprint(header)

	var records []salesRecord
	if err := gocsv.UnmarshalCSVWithoutHeaders(r, &records); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return &ParseResult{Layout: layout}
		}
		perr := ParseError{Message: err.Error()}
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			perr.Row = csvErr.Line
			perr.Message = csvErr.Err.Error()
		}
		result := rejected(0, perr)
		result.Layout = layout
		return result
	}

	cells := make([][]any, len(records))
	for i, rec := range records {
		cells[i] = rec.cells()
	}
	result := p.schema.parseRecords(cells, 2)
	result.Layout = layout
	return result
}
