// Package parser reads monthly sales spreadsheets into typed rows.
//
// Parsing is fail-fast: a file either yields one Row per data line, in file
// order, or nothing at all. A single malformed line rejects the whole file.
package parser

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/FACorreiaa/sales-manager/internal/domain/import/sniffer"
	"github.com/FACorreiaa/sales-manager/pkg/money"
)

// Default schema field names
const (
	FieldProduct  = "product"
	FieldCategory = "category"
	FieldSold     = "sold"
	FieldCost     = "cost"
	FieldTotal    = "total"
)

// Converter turns a raw cell value (string, float64 or bool) into a typed value.
type Converter func(v any) (any, error)

// Column binds a field name to its conversion.
type Column struct {
	Name    string
	Convert Converter
}

// Schema is the fixed, ordered column layout every data row must follow.
type Schema struct {
	columns []Column
}

// NewSchema builds a schema from columns in sheet order.
func NewSchema(columns ...Column) Schema {
	return Schema{columns: append([]Column(nil), columns...)}
}

// DefaultSchema returns product, category, sold, cost, total with money
// columns parsed in pt-BR notation and tagged with currency.
func DefaultSchema(currency string) Schema {
	return NewSchema(
		Column{Name: FieldProduct, Convert: Name},
		Column{Name: FieldCategory, Convert: Name},
		Column{Name: FieldSold, Convert: Count},
		Column{Name: FieldCost, Convert: Currency(currency, money.PtBR)},
		Column{Name: FieldTotal, Convert: Currency(currency, money.PtBR)},
	)
}

// Len returns the number of cells each data row must have.
func (s Schema) Len() int {
	return len(s.columns)
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Row is one parsed data line.
// The typed fields are filled when the schema carries the default columns.
type Row struct {
	Product  string
	Category string
	Sold     int64
	Cost     *money.Money
	Total    *money.Money

	Values map[string]any
}

func newRow(values map[string]any) Row {
	r := Row{Values: values}
	r.Product, _ = values[FieldProduct].(string)
	r.Category, _ = values[FieldCategory].(string)
	r.Sold, _ = values[FieldSold].(int64)
	r.Cost, _ = values[FieldCost].(*money.Money)
	r.Total, _ = values[FieldTotal].(*money.Money)
	return r
}

// ParseError explains why a file was rejected
type ParseError struct {
	Row     int // 1-indexed sheet line, header included
	Column  string
	Message string
}

func (e ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ParseResult holds the rows of an accepted file, or the reason it was rejected
type ParseResult struct {
	Rows      []Row
	TotalRows int         // Data lines seen, header excluded
	Rejection *ParseError // Set when the file was rejected; Rows is then empty
	Layout    string      // Fingerprint of the header row
}

// Empty reports whether the file produced no rows, either because it was
// rejected or because it only had a header.
func (r *ParseResult) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Parser reads a whole file. Parse never returns partial results.
type Parser interface {
	Parse(r io.Reader) *ParseResult
}

func rejected(totalRows int, perr ParseError) *ParseResult {
	return &ParseResult{TotalRows: totalRows, Rejection: &perr}
}

// parseRecords applies the schema to data records, which exclude the header.
// firstLine is the sheet line number of records[0].
func (s Schema) parseRecords(records [][]any, firstLine int) *ParseResult {
	rows := make([]Row, 0, len(records))

	for i, record := range records {
		line := firstLine + i
		if len(record) != len(s.columns) {
			return rejected(len(records), ParseError{
				Row:     line,
				Message: fmt.Sprintf("expected %d cells, got %d", len(s.columns), len(record)),
			})
		}

		values := make(map[string]any, len(s.columns))
		for j, col := range s.columns {
			v, err := col.Convert(record[j])
			if err != nil {
				return rejected(len(records), ParseError{Row: line, Column: col.Name, Message: err.Error()})
			}
			values[col.Name] = v
		}
		rows = append(rows, newRow(values))
	}

	return &ParseResult{Rows: rows, TotalRows: len(records)}
}

// String coerces a cell to text. Whole numbers drop their fractional part.
func String(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(x), nil
	}
}

// Name is String restricted to non-blank text, for cells that key a record.
func Name(v any) (any, error) {
	s, err := String(v)
	if err != nil {
		return nil, err
	}
	if s.(string) == "" {
		return nil, fmt.Errorf("blank value")
	}
	return s, nil
}

// Integer coerces a cell to a whole number.
// Numeric cells must be integral; text cells must be a plain base-10 integer.
// A fractional count such as 9.5 rejects the file instead of truncating to 9.
func Integer(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return nil, fmt.Errorf("not an integer: %v", x)
		}
		if x > math.MaxInt64 || x < math.MinInt64 {
			return nil, fmt.Errorf("integer out of range: %v", x)
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("not an integer: %v", v)
	}
}

// Count is Integer restricted to values >= 0.
func Count(v any) (any, error) {
	n, err := Integer(v)
	if err != nil {
		return nil, err
	}
	if n.(int64) < 0 {
		return nil, fmt.Errorf("negative count: %d", n)
	}
	return n, nil
}

// Currency returns a converter producing money tagged with currency.
func Currency(currency string, loc money.Locale) Converter {
	return func(v any) (any, error) {
		return parseCurrency(v, currency, loc)
	}
}

// ForFormat returns the parser for a detected file format, or nil when the
// format is not supported.
func ForFormat(format sniffer.Format, currency string) Parser {
	switch format {
	case sniffer.FormatXLSX:
		return NewExcelParser(DefaultSchema(currency))
	case sniffer.FormatCSV:
		return NewCSVParser(currency)
	default:
		return nil
	}
}
