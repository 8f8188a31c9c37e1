// Package service merges parsed spreadsheet rows into monthly sales aggregates
// and answers the reporting queries over them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	"github.com/FACorreiaa/sales-manager/pkg/db"
	"github.com/FACorreiaa/sales-manager/pkg/money"
)

// Line is every row of one file that shares a (product, category) key,
// folded in file order.
type Line struct {
	Product  string
	Category string
	Sold     int64
	Cost     *money.Money // Last row wins
	Total    *money.Money // Sum of rows
	Rows     int
}

// Fold collapses rows sharing a (product, category) key. Lines keep the order
// in which their key was first seen.
func Fold(rows []parser.Row) ([]Line, error) {
	type key struct{ product, category string }

	index := make(map[key]int, len(rows))
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		k := key{row.Product, row.Category}
		i, ok := index[k]
		if !ok {
			index[k] = len(lines)
			lines = append(lines, Line{
				Product:  row.Product,
				Category: row.Category,
				Sold:     row.Sold,
				Cost:     row.Cost,
				Total:    row.Total,
				Rows:     1,
			})
			continue
		}

		line := &lines[i]
		total, err := line.Total.Add(row.Total)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", row.Product, err)
		}
		line.Sold += row.Sold
		line.Total = total
		line.Cost = row.Cost
		line.Rows++
	}
	return lines, nil
}

// AggregateResult reports what one import wrote
type AggregateResult struct {
	Rows       int
	Categories int
	Products   int
	Sales      []*repository.Sale
}

// Service provides sales aggregation and reporting
type Service struct {
	repo   repository.SalesRepository
	tx     db.TxRunner
	logger *slog.Logger
}

// NewService creates a new sales service
func NewService(repo repository.SalesRepository, tx db.TxRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, logger: logger}
}

// LookupOrCreateCompany returns the company with exactly this name, creating it if absent.
func (s *Service) LookupOrCreateCompany(ctx context.Context, name string) (*repository.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &common.ValidationError{Field: "company", Message: "Este campo é obrigatório."}
	}
	return s.repo.UpsertCompany(ctx, name)
}

// GetCompany retrieves a company by ID
func (s *Service) GetCompany(ctx context.Context, id uuid.UUID) (*repository.Company, error) {
	return s.repo.GetCompany(ctx, id)
}

// FindCompanyByName returns common.ErrNotFound when no company has this name.
func (s *Service) FindCompanyByName(ctx context.Context, name string) (*repository.Company, error) {
	return s.repo.GetCompanyByName(ctx, strings.TrimSpace(name))
}

// Aggregate merges rows into the company's aggregates for month in one transaction.
func (s *Service) Aggregate(ctx context.Context, companyID uuid.UUID, month time.Time, rows []parser.Row) (*AggregateResult, error) {
	var result *AggregateResult
	err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = s.AggregateTx(ctx, tx, companyID, month, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AggregateTx merges rows using tx, so callers can commit other writes with
// the same transaction.
func (s *Service) AggregateTx(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, month time.Time, rows []parser.Row) (*AggregateResult, error) {
	lines, err := Fold(rows)
	if err != nil {
		return nil, err
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	month = common.FirstOfMonth(month)

	categories := make(map[string]uuid.UUID)
	products := make(map[uuid.UUID]struct{})
	result := &AggregateResult{Rows: len(rows), Sales: make([]*repository.Sale, 0, len(lines))}

	for _, line := range lines {
		categoryID, ok := categories[line.Category]
		if !ok {
			category, err := repo.UpsertCategory(ctx, line.Category)
			if err != nil {
				return nil, err
			}
			categoryID = category.ID
			categories[line.Category] = categoryID
		}

		product, err := repo.UpsertProduct(ctx, line.Product, categoryID)
		if err != nil {
			return nil, err
		}
		products[product.ID] = struct{}{}

		if err := repo.LinkCompany(ctx, product.ID, companyID); err != nil {
			return nil, err
		}

		sale, err := repo.MergeSale(ctx, repository.SaleDelta{
			CompanyID: companyID,
			ProductID: product.ID,
			Month:     month,
			Sold:      line.Sold,
			Cost:      line.Cost,
			Total:     line.Total,
		})
		if err != nil {
			return nil, err
		}
		result.Sales = append(result.Sales, sale)
	}

	result.Categories = len(categories)
	result.Products = len(products)

	s.logger.Debug("sales aggregated",
		slog.String("company_id", companyID.String()),
		slog.String("month", month.Format("2006-01")),
		slog.Int("rows", result.Rows),
		slog.Int("aggregates", len(result.Sales)))
	return result, nil
}

// CompanySummary returns product count, units sold and best seller of a company
func (s *Service) CompanySummary(ctx context.Context, companyID uuid.UUID) (*repository.CompanySummary, error) {
	return s.repo.CompanySummary(ctx, companyID)
}

// ProductCurrent is the latest known cost and price of a product
type ProductCurrent struct {
	Sale  *repository.SaleView
	Cost  *money.Money
	Price *money.Money // Nil when the latest aggregate sold no units
}

// ProductCurrent returns the latest aggregate of a product, optionally within one company.
func (s *Service) ProductCurrent(ctx context.Context, productID uuid.UUID, companyID *uuid.UUID) (*ProductCurrent, error) {
	sale, err := s.repo.LatestSale(ctx, productID, companyID)
	if err != nil {
		return nil, err
	}

	current := &ProductCurrent{Sale: sale, Cost: sale.Cost()}
	price, err := sale.Price()
	switch {
	case errors.Is(err, repository.ErrNoUnitsSold):
	case err != nil:
		return nil, err
	default:
		current.Price = price
	}
	return current, nil
}

// SaleLine is one aggregate as listed in reports
type SaleLine struct {
	*repository.SaleView
	Price *money.Money
	Label string
}

// ListSales lists aggregates with their derived price and label
func (s *Service) ListSales(ctx context.Context, filter repository.SaleFilter) ([]SaleLine, error) {
	if filter.Month != nil {
		m := common.FirstOfMonth(*filter.Month)
		filter.Month = &m
	}

	views, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}

	lines := make([]SaleLine, 0, len(views))
	for _, v := range views {
		line := SaleLine{SaleView: v, Label: v.String()}
		if price, err := v.Price(); err == nil {
			line.Price = price
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ProductMatch is a product ranked against a search query
type ProductMatch struct {
	Product  *repository.ProductView
	Distance int
}

// SearchProducts fuzzy-matches query against product and category names.
// Lower distance ranks first; each product appears once with its best distance.
func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]ProductMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &common.ValidationError{Field: "q", Message: "Este campo é obrigatório."}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(products)*2)
	owners := make([]int, 0, len(products)*2)
	for i, p := range products {
		targets = append(targets, p.Name, p.CategoryName)
		owners = append(owners, i, i)
	}

	best := make(map[int]int)
	for _, rank := range fuzzy.RankFindNormalizedFold(query, targets) {
		owner := owners[rank.OriginalIndex]
		if d, ok := best[owner]; !ok || rank.Distance < d {
			best[owner] = rank.Distance
		}
	}

	matches := make([]ProductMatch, 0, len(best))
	for i, d := range best {
		matches = append(matches, ProductMatch{Product: products[i], Distance: d})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Product.Name < matches[j].Product.Name
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
