// Package handler exposes the sales reports over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	"github.com/FACorreiaa/sales-manager/internal/domain/sales/service"
	"github.com/FACorreiaa/sales-manager/pkg/httpx"
	"github.com/FACorreiaa/sales-manager/pkg/money"
)

// SalesService is the part of the sales service the handler needs
type SalesService interface {
	CompanySummary(ctx context.Context, companyID uuid.UUID) (*repository.CompanySummary, error)
	ProductCurrent(ctx context.Context, productID uuid.UUID, companyID *uuid.UUID) (*service.ProductCurrent, error)
	ListSales(ctx context.Context, filter repository.SaleFilter) ([]service.SaleLine, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]service.ProductMatch, error)
}

var _ SalesService = (*service.Service)(nil)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// SalesHandler serves the sales report routes
type SalesHandler struct {
	svc    SalesService
	logger *slog.Logger
}

// NewSalesHandler creates a new sales handler
func NewSalesHandler(svc SalesService, logger *slog.Logger) *SalesHandler {
	return &SalesHandler{svc: svc, logger: logger}
}

// Register mounts the routes on mux, wrapped by wrap (auth and friends).
func (h *SalesHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/companies/{id}/summary", wrap(http.HandlerFunc(h.CompanySummary)))
	mux.Handle("GET /api/sales", wrap(http.HandlerFunc(h.ListSales)))
	mux.Handle("GET /api/products/search", wrap(http.HandlerFunc(h.SearchProducts)))
	mux.Handle("GET /api/products/{id}/current", wrap(http.HandlerFunc(h.ProductCurrent)))
}

type summaryResponse struct {
	CompanyID      uuid.UUID  `json:"company_id"`
	CompanyName    string     `json:"company_name"`
	ProductsCount  int64      `json:"products_count"`
	TotalSold      int64      `json:"total_sold"`
	BestSellerID   *uuid.UUID `json:"best_seller_id,omitempty"`
	BestSellerName *string    `json:"best_seller_name,omitempty"`
	BestSellerSold int64      `json:"best_seller_sold"`
}

type saleResponse struct {
	ID           uuid.UUID    `json:"id"`
	Label        string       `json:"label"`
	CompanyID    uuid.UUID    `json:"company_id"`
	CompanyName  string       `json:"company_name"`
	ProductID    uuid.UUID    `json:"product_id"`
	ProductName  string       `json:"product_name"`
	CategoryID   uuid.UUID    `json:"category_id"`
	CategoryName string       `json:"category_name"`
	Month        string       `json:"month"`
	MonthLabel   string       `json:"month_label"`
	Sold         int64        `json:"sold"`
	Cost         *money.Money `json:"cost"`
	Price        *money.Money `json:"price,omitempty"`
	Total        *money.Money `json:"total"`
}

type productMatchResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Distance     int       `json:"distance"`
}

type currentResponse struct {
	ProductID   uuid.UUID    `json:"product_id"`
	ProductName string       `json:"product_name"`
	Month       string       `json:"month"`
	Cost        *money.Money `json:"cost"`
	Price       *money.Money `json:"price,omitempty"`
}

// CompanySummary handles GET /api/companies/{id}/summary
func (h *SalesHandler) CompanySummary(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	s, err := h.svc.CompanySummary(r.Context(), companyID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, summaryResponse{
		CompanyID:      s.CompanyID,
		CompanyName:    s.CompanyName,
		ProductsCount:  s.ProductsCount,
		TotalSold:      s.TotalSold,
		BestSellerID:   s.BestSellerID,
		BestSellerName: s.BestSellerName,
		BestSellerSold: s.BestSellerSold,
	})
}

// ListSales handles GET /api/sales
func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	lines, err := h.svc.ListSales(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	resp := make([]saleResponse, 0, len(lines))
	for _, l := range lines {
		resp = append(resp, saleResponse{
			ID:           l.ID,
			Label:        l.Label,
			CompanyID:    l.CompanyID,
			CompanyName:  l.CompanyName,
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			CategoryID:   l.CategoryID,
			CategoryName: l.CategoryName,
			Month:        l.SaleMonth.Format("2006-01-02"),
			MonthLabel:   common.MonthYear(l.SaleMonth),
			Sold:         l.Sold,
			Cost:         l.Cost(),
			Price:        l.Price,
			Total:        l.Total(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// SearchProducts handles GET /api/products/search?q=
func (h *SalesHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	matches, err := h.svc.SearchProducts(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	resp := make([]productMatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, productMatchResponse{
			ID:           m.Product.ID,
			Name:         m.Product.Name,
			CategoryID:   m.Product.CategoryID,
			CategoryName: m.Product.CategoryName,
			Distance:     m.Distance,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ProductCurrent handles GET /api/products/{id}/current
func (h *SalesHandler) ProductCurrent(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	companyID, err := uuidParam(r, "company_id")
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	current, err := h.svc.ProductCurrent(r.Context(), productID, companyID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, currentResponse{
		ProductID:   current.Sale.ProductID,
		ProductName: current.Sale.ProductName,
		Month:       current.Sale.SaleMonth.Format("2006-01-02"),
		Cost:        current.Cost,
		Price:       current.Price,
	})
}

func parseFilter(r *http.Request) (repository.SaleFilter, error) {
	var (
		f   repository.SaleFilter
		err error
	)
	if f.CompanyID, err = uuidParam(r, "company_id"); err != nil {
		return f, err
	}
	if f.CategoryID, err = uuidParam(r, "category_id"); err != nil {
		return f, err
	}
	if f.ProductID, err = uuidParam(r, "product_id"); err != nil {
		return f, err
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := common.ParseMonth(raw)
		if err != nil {
			return f, &common.ValidationError{Field: "month", Message: "Informe uma data válida."}
		}
		f.Month = &m
	}
	if f.Limit, err = intParam(r, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset, err = intParam(r, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &common.ValidationError{Field: "id", Message: "invalid id"}
	}
	return id, nil
}

func uuidParam(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &common.ValidationError{Field: name, Message: "invalid id"}
	}
	return &id, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &common.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
