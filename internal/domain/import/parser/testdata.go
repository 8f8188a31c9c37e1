package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/sales-manager/pkg/money"
)

// DefaultHeader is the header row of the monthly sales spreadsheet.
var DefaultHeader = []any{"Produto", "Categoria", "Vendidos", "Custo", "Total"}

// TestDataGenerator generates realistic sales spreadsheets using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// TestSale is one generated spreadsheet line.
type TestSale struct {
	Product  string
	Category string
	Sold     int64
	Cost     *money.Money
	Total    *money.Money
}

// Sale generates a single line where total = cost * sold.
func (g *TestDataGenerator) Sale() TestSale {
	sold := int64(g.faker.IntRange(1, 500))
	cost := money.NewFromFloat(g.faker.Price(1, 2000), money.BRL)

	return TestSale{
		Product:  g.faker.ProductName(),
		Category: g.faker.ProductCategory(),
		Sold:     sold,
		Cost:     cost,
		Total:    money.New(cost.Amount()*sold, money.BRL),
	}
}

// Sales generates n lines.
func (g *TestDataGenerator) Sales(n int) []TestSale {
	sales := make([]TestSale, n)
	for i := range sales {
		sales[i] = g.Sale()
	}
	return sales
}

// Cells renders the line as sheet cells. With asText the money columns are
// pt-BR strings such as "R$ 1.234,56"; otherwise they are numbers.
func (s TestSale) Cells(asText bool) []any {
	if asText {
		return []any{s.Product, s.Category, s.Sold, FormatBRL(s.Cost), FormatBRL(s.Total)}
	}
	return []any{s.Product, s.Category, s.Sold, s.Cost.ToFloat64(), s.Total.ToFloat64()}
}

// FormatBRL writes an amount the way a pt-BR spreadsheet displays it.
func FormatBRL(m *money.Money) string {
	whole := m.Amount() / 100
	cents := m.Amount() % 100
	sign := ""
	if whole < 0 || cents < 0 {
		sign = "-"
		whole, cents = -whole, -cents
	}

	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}
	return fmt.Sprintf("R$ %s%s,%02d", sign, grouped.String(), cents)
}

// Workbook builds an xlsx file with the header followed by rows, in order.
func Workbook(header []any, rows ...[]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	all := append([][]any{header}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SalesWorkbook builds an xlsx file with the default header and the given lines.
func SalesWorkbook(sales []TestSale, asText bool) ([]byte, error) {
	rows := make([][]any, len(sales))
	for i, s := range sales {
		rows[i] = s.Cells(asText)
	}
	return Workbook(DefaultHeader, rows...)
}

// SalesCSV renders lines as a semicolon separated file with pt-BR amounts.
func SalesCSV(sales []TestSale) []byte {
	var buf bytes.Buffer
	buf.WriteString("Produto;Categoria;Vendidos;Custo;Total\n")
	for _, s := range sales {
		fmt.Fprintf(&buf, "%s;%s;%d;%s;%s\n", s.Product, s.Category, s.Sold, FormatBRL(s.Cost), FormatBRL(s.Total))
	}
	return buf.Bytes()
}
