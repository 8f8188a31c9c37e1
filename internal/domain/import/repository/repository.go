// Package repository persists import records and derives their domain events.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
)

// Status of an import record
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusImported   Status = "IMPORTED"
	StatusError      Status = "ERROR"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusImported, StatusError:
		return true
	}
	return false
}

// ImportFile is one uploaded spreadsheet for a company and month.
type ImportFile struct {
	ID                uuid.UUID
	UserID            *uuid.UUID
	UserEmail         string
	CompanyID         uuid.UUID
	CompanyName       string // Read only, joined from companies
	Month             time.Time
	FilePath          string
	FileName          string
	Status            Status
	Revision          int // Bumped on every file replacement
	ProcessedRevision int // Last revision a job applied
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// String renders the record as "Registro de vendas de CompanyX no mês de Julho de 2018".
func (f *ImportFile) String() string {
	return fmt.Sprintf("Registro de vendas de %s no mês de %s", f.CompanyName, common.MonthYear(f.Month))
}

// Pending reports whether the current revision still needs a job run
func (f *ImportFile) Pending() bool {
	return f.ProcessedRevision < f.Revision
}

// ReplaceFile points the record at a new blob. A different path starts a new
// revision and resets the status to PROCESSING; the same path is a no-op.
func (f *ImportFile) ReplaceFile(path, name string) {
	if path == f.FilePath {
		return
	}
	f.FilePath = path
	f.FileName = name
	f.Revision++
	f.Status = StatusProcessing
}

// Filter narrows List. Nil fields are not filtered on.
type Filter struct {
	UserID    *uuid.UUID
	CompanyID *uuid.UUID
	Status    *Status
	Limit     int
	Offset    int
}

// ImportRepository defines the interface for import record persistence.
// Writes return the events implied by the change.
type ImportRepository interface {
	WithTx(tx pgx.Tx) ImportRepository

	Create(ctx context.Context, f *ImportFile) ([]Event, error)
	// Save writes after and diffs it against before, the value loaded earlier
	Save(ctx context.Context, before, after *ImportFile) ([]Event, error)

	Get(ctx context.Context, id uuid.UUID) (*ImportFile, error)
	// GetForUpdate locks the row until the surrounding transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*ImportFile, error)
	ExistsForCompanyMonth(ctx context.Context, companyID uuid.UUID, month time.Time) (bool, error)
	List(ctx context.Context, filter Filter) ([]*ImportFile, error)
	// ListStale returns pending records not touched since before
	ListStale(ctx context.Context, before time.Time, limit int) ([]*ImportFile, error)
}
