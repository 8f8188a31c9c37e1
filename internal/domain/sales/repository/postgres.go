package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/pkg/db"
)

const (
	upsertCompanyQuery = `
		INSERT INTO companies (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	upsertCategoryQuery = `
		INSERT INTO product_categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	upsertProductQuery = `
		INSERT INTO products (name, category_id) VALUES ($1, $2)
		ON CONFLICT (name, category_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, category_id, created_at`

	linkCompanyQuery = `
		INSERT INTO product_companies (product_id, company_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	// Units and totals accumulate, cost is overwritten by the latest import.
	mergeSaleQuery = `
		INSERT INTO product_sales (company_id, product_id, sale_month, sold, cost_cents, total_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, product_id, sale_month) DO UPDATE SET
			sold = product_sales.sold + EXCLUDED.sold,
			total_cents = product_sales.total_cents + EXCLUDED.total_cents,
			cost_cents = EXCLUDED.cost_cents,
			updated_at = now()
		RETURNING id, company_id, product_id, sale_month, sold, cost_cents, total_cents, currency, created_at, updated_at`

	getCompanyQuery = `SELECT id, name, created_at FROM companies WHERE id = $1`

	getCompanyByNameQuery = `SELECT id, name, created_at FROM companies WHERE name = $1`

	saleViewSelect = `
		SELECT s.id, s.company_id, s.product_id, s.sale_month, s.sold, s.cost_cents, s.total_cents,
		       s.currency, s.created_at, s.updated_at,
		       c.name, p.name, p.category_id, pc.name
		FROM product_sales s
		JOIN companies c ON c.id = s.company_id
		JOIN products p ON p.id = s.product_id
		JOIN product_categories pc ON pc.id = p.category_id`

	listProductsQuery = `
		SELECT p.id, p.name, p.category_id, pc.name
		FROM products p
		JOIN product_categories pc ON pc.id = p.category_id
		ORDER BY p.name`

	companySummaryQuery = `
		WITH per_product AS (
			SELECT s.product_id, p.name, SUM(s.sold) AS sold
			FROM product_sales s
			JOIN products p ON p.id = s.product_id
			WHERE s.company_id = $1
			GROUP BY s.product_id, p.name
		), best AS (
			SELECT product_id, name, sold FROM per_product ORDER BY sold DESC, name LIMIT 1
		)
		SELECT c.id, c.name,
		       (SELECT COUNT(*) FROM product_companies pc WHERE pc.company_id = c.id),
		       COALESCE((SELECT SUM(sold) FROM per_product), 0)::BIGINT,
		       (SELECT product_id FROM best),
		       (SELECT name FROM best),
		       COALESCE((SELECT sold FROM best), 0)::BIGINT
		FROM companies c
		WHERE c.id = $1`
)

// PostgresSalesRepository implements SalesRepository on PostgreSQL
type PostgresSalesRepository struct {
	q db.Querier
}

var _ SalesRepository = (*PostgresSalesRepository)(nil)

// NewPostgresSalesRepository creates a new sales repository
func NewPostgresSalesRepository(q db.Querier) *PostgresSalesRepository {
	return &PostgresSalesRepository{q: q}
}

func (r *PostgresSalesRepository) WithTx(tx pgx.Tx) SalesRepository {
	return &PostgresSalesRepository{q: tx}
}

// UpsertCompany returns the company with name, creating it if needed
func (r *PostgresSalesRepository) UpsertCompany(ctx context.Context, name string) (*Company, error) {
	c := &Company{}
	err := r.q.QueryRow(ctx, upsertCompanyQuery, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert company: %w", err)
	}
	return c, nil
}

// UpsertCategory returns the category with name, creating it if needed
func (r *PostgresSalesRepository) UpsertCategory(ctx context.Context, name string) (*Category, error) {
	c := &Category{}
	err := r.q.QueryRow(ctx, upsertCategoryQuery, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	return c, nil
}

// UpsertProduct returns the product with name in categoryID, creating it if needed
func (r *PostgresSalesRepository) UpsertProduct(ctx context.Context, name string, categoryID uuid.UUID) (*Product, error) {
	p := &Product{}
	err := r.q.QueryRow(ctx, upsertProductQuery, name, categoryID).Scan(&p.ID, &p.Name, &p.CategoryID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert product: %w", err)
	}
	return p, nil
}

// LinkCompany adds companyID to the product's sellers. Linking twice is a no-op.
func (r *PostgresSalesRepository) LinkCompany(ctx context.Context, productID, companyID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, linkCompanyQuery, productID, companyID); err != nil {
		return fmt.Errorf("failed to link company to product: %w", err)
	}
	return nil
}

// MergeSale adds delta to the (company, product, month) aggregate, creating it on first sight
func (r *PostgresSalesRepository) MergeSale(ctx context.Context, delta SaleDelta) (*Sale, error) {
	s := &Sale{}
	err := r.q.QueryRow(ctx, mergeSaleQuery,
		delta.CompanyID,
		delta.ProductID,
		common.FirstOfMonth(delta.Month),
		delta.Sold,
		delta.Cost.Amount(),
		delta.Total.Amount(),
		delta.Total.Currency(),
	).Scan(saleFields(s)...)
	if err != nil {
		return nil, fmt.Errorf("failed to merge sale: %w", err)
	}
	return s, nil
}

// GetCompany retrieves a company by ID
func (r *PostgresSalesRepository) GetCompany(ctx context.Context, id uuid.UUID) (*Company, error) {
	return r.getCompany(ctx, getCompanyQuery, id)
}

// GetCompanyByName retrieves a company by its exact name
func (r *PostgresSalesRepository) GetCompanyByName(ctx context.Context, name string) (*Company, error) {
	return r.getCompany(ctx, getCompanyByNameQuery, name)
}

func (r *PostgresSalesRepository) getCompany(ctx context.Context, query string, arg any) (*Company, error) {
	c := &Company{}
	err := r.q.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// LatestSale returns the most recent month of a product, optionally for one company
func (r *PostgresSalesRepository) LatestSale(ctx context.Context, productID uuid.UUID, companyID *uuid.UUID) (*SaleView, error) {
	query := saleViewSelect + ` WHERE s.product_id = $1`
	args := []any{productID}
	if companyID != nil {
		query += ` AND s.company_id = $2`
		args = append(args, *companyID)
	}
	query += ` ORDER BY s.sale_month DESC, s.updated_at DESC LIMIT 1`

	v := &SaleView{}
	err := r.q.QueryRow(ctx, query, args...).Scan(saleViewFields(v)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sale: %w", err)
	}
	return v, nil
}

// ListSales lists aggregates, newest month first
func (r *PostgresSalesRepository) ListSales(ctx context.Context, filter SaleFilter) ([]*SaleView, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CompanyID != nil {
		add("s.company_id = $%d", *filter.CompanyID)
	}
	if filter.CategoryID != nil {
		add("p.category_id = $%d", *filter.CategoryID)
	}
	if filter.ProductID != nil {
		add("s.product_id = $%d", *filter.ProductID)
	}
	if filter.Month != nil {
		add("s.sale_month = $%d", common.FirstOfMonth(*filter.Month))
	}

	query := saleViewSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY s.sale_month DESC, c.name, p.name`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*SaleView
	for rows.Next() {
		v := &SaleView{}
		if err := rows.Scan(saleViewFields(v)...); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, v)
	}
	return sales, rows.Err()
}

// ListProducts lists every product with its category
func (r *PostgresSalesRepository) ListProducts(ctx context.Context) ([]*ProductView, error) {
	rows, err := r.q.Query(ctx, listProductsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*ProductView
	for rows.Next() {
		p := &ProductView{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CompanySummary counts products and units sold and finds the best seller
func (r *PostgresSalesRepository) CompanySummary(ctx context.Context, companyID uuid.UUID) (*CompanySummary, error) {
	s := &CompanySummary{}
	err := r.q.QueryRow(ctx, companySummaryQuery, companyID).Scan(
		&s.CompanyID,
		&s.CompanyName,
		&s.ProductsCount,
		&s.TotalSold,
		&s.BestSellerID,
		&s.BestSellerName,
		&s.BestSellerSold,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to summarize company: %w", err)
	}
	return s, nil
}

func saleFields(s *Sale) []any {
	return []any{
		&s.ID,
		&s.CompanyID,
		&s.ProductID,
		&s.SaleMonth,
		&s.Sold,
		&s.CostCents,
		&s.TotalCents,
		&s.Currency,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
}

func saleViewFields(v *SaleView) []any {
	return append(saleFields(&v.Sale), &v.CompanyName, &v.ProductName, &v.CategoryID, &v.CategoryName)
}
