// Package repository provides database operations for companies, products and
// their monthly sales aggregates.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/pkg/money"
)

// ErrNoUnitsSold is returned when a unit price is asked of an aggregate with no units.
var ErrNoUnitsSold = errors.New("no units sold")

// Company sells products. Names are unique.
type Company struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Category groups products. Names are unique.
type Category struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Product is identified by its name within a category
type Product struct {
	ID         uuid.UUID
	Name       string
	CategoryID uuid.UUID
	CreatedAt  time.Time
}

// Sale is the running total of one product, for one company, in one month.
type Sale struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	ProductID  uuid.UUID
	SaleMonth  time.Time // Always the first day of the month
	Sold       int64
	CostCents  int64 // Latest cost seen
	TotalCents int64
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Cost returns the latest unit cost
func (s *Sale) Cost() *money.Money {
	return money.New(s.CostCents, s.Currency)
}

// Total returns the accumulated sales amount
func (s *Sale) Total() *money.Money {
	return money.New(s.TotalCents, s.Currency)
}

// Price returns total / sold, rounded to cents.
func (s *Sale) Price() (*money.Money, error) {
	if s.Sold == 0 {
		return nil, ErrNoUnitsSold
	}
	return s.Total().DivideInt(s.Sold)
}

// SaleDelta is the amount one import adds to an aggregate.
type SaleDelta struct {
	CompanyID uuid.UUID
	ProductID uuid.UUID
	Month     time.Time
	Sold      int64
	Cost      *money.Money
	Total     *money.Money
}

// SaleView is a sale joined with its company, product and category names.
type SaleView struct {
	Sale
	CompanyName  string
	ProductName  string
	CategoryID   uuid.UUID
	CategoryName string
}

// String renders the aggregate the way the back office lists it:
// "[Company]Vendas de Product em Julho de 2018".
func (v *SaleView) String() string {
	return fmt.Sprintf("[%s]Vendas de %s em %s", v.CompanyName, v.ProductName, common.MonthYear(v.SaleMonth))
}

// ProductView is a product with its category name
type ProductView struct {
	ID           uuid.UUID
	Name         string
	CategoryID   uuid.UUID
	CategoryName string
}

// CompanySummary aggregates every month of one company's sales
type CompanySummary struct {
	CompanyID      uuid.UUID
	CompanyName    string
	ProductsCount  int64
	TotalSold      int64
	BestSellerID   *uuid.UUID
	BestSellerName *string
	BestSellerSold int64
}

// SaleFilter narrows ListSales. Nil fields are not filtered on.
type SaleFilter struct {
	CompanyID  *uuid.UUID
	CategoryID *uuid.UUID
	ProductID  *uuid.UUID
	Month      *time.Time
	Limit      int
	Offset     int
}

// SalesRepository defines the interface for sales persistence operations.
// Every write is an upsert on a natural key, so concurrent imports cannot
// create duplicates or lose increments.
type SalesRepository interface {
	// WithTx returns a repository whose statements run inside tx
	WithTx(tx pgx.Tx) SalesRepository

	// Lookup-or-create
	UpsertCompany(ctx context.Context, name string) (*Company, error)
	UpsertCategory(ctx context.Context, name string) (*Category, error)
	UpsertProduct(ctx context.Context, name string, categoryID uuid.UUID) (*Product, error)
	LinkCompany(ctx context.Context, productID, companyID uuid.UUID) error
	MergeSale(ctx context.Context, delta SaleDelta) (*Sale, error)

	// Reads
	GetCompany(ctx context.Context, id uuid.UUID) (*Company, error)
	GetCompanyByName(ctx context.Context, name string) (*Company, error)
	LatestSale(ctx context.Context, productID uuid.UUID, companyID *uuid.UUID) (*SaleView, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]*SaleView, error)
	ListProducts(ctx context.Context) ([]*ProductView, error)
	CompanySummary(ctx context.Context, companyID uuid.UUID) (*CompanySummary, error)
}
