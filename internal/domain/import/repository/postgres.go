package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/pkg/db"
)

const (
	insertImportQuery = `
		INSERT INTO import_files (id, user_id, user_email, company_id, month, file_path, file_name, status, revision, processed_revision)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	updateImportQuery = `
		UPDATE import_files SET
			company_id = $2,
			month = $3,
			file_path = $4,
			file_name = $5,
			status = $6,
			revision = $7,
			processed_revision = $8,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	importSelect = `
		SELECT f.id, f.user_id, COALESCE(f.user_email, ''), f.company_id, c.name, f.month,
		       f.file_path, f.file_name, f.status, f.revision, f.processed_revision,
		       f.created_at, f.updated_at
		FROM import_files f
		JOIN companies c ON c.id = f.company_id`

	getImportQuery = importSelect + ` WHERE f.id = $1`

	getImportForUpdateQuery = importSelect + ` WHERE f.id = $1 FOR UPDATE OF f`

	existsImportQuery = `SELECT EXISTS (SELECT 1 FROM import_files WHERE company_id = $1 AND month = $2)`

	listStaleQuery = importSelect + `
		WHERE f.processed_revision < f.revision AND f.updated_at < $1
		ORDER BY f.updated_at
		LIMIT $2`
)

// PostgresImportRepository implements ImportRepository on PostgreSQL
type PostgresImportRepository struct {
	q db.Querier
}

var _ ImportRepository = (*PostgresImportRepository)(nil)

// NewPostgresImportRepository creates a new import repository
func NewPostgresImportRepository(q db.Querier) *PostgresImportRepository {
	return &PostgresImportRepository{q: q}
}

// WithTx returns a repository bound to tx
func (r *PostgresImportRepository) WithTx(tx pgx.Tx) ImportRepository {
	return &PostgresImportRepository{q: tx}
}

// Create inserts a new record. A second record for the same company and
// month is reported as common.ErrConflict.
func (r *PostgresImportRepository) Create(ctx context.Context, f *ImportFile) ([]Event, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = StatusProcessing
	}
	if f.Revision == 0 {
		f.Revision = 1
	}
	f.Month = common.FirstOfMonth(f.Month)

	err := r.q.QueryRow(ctx, insertImportQuery,
		f.ID,
		f.UserID,
		f.UserEmail,
		f.CompanyID,
		f.Month,
		f.FilePath,
		f.FileName,
		string(f.Status),
		f.Revision,
		f.ProcessedRevision,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("import for company and month: %w", common.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create import: %w", err)
	}
	return Diff(nil, f), nil
}

// Save writes the mutable fields of after
func (r *PostgresImportRepository) Save(ctx context.Context, before, after *ImportFile) ([]Event, error) {
	if before == nil || before.ID != after.ID {
		return nil, errors.New("save requires the previously loaded record")
	}
	after.Month = common.FirstOfMonth(after.Month)

	err := r.q.QueryRow(ctx, updateImportQuery,
		after.ID,
		after.CompanyID,
		after.Month,
		after.FilePath,
		after.FileName,
		string(after.Status),
		after.Revision,
		after.ProcessedRevision,
	).Scan(&after.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("import for company and month: %w", common.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update import: %w", err)
	}
	return Diff(before, after), nil
}

// Get retrieves a record by ID
func (r *PostgresImportRepository) Get(ctx context.Context, id uuid.UUID) (*ImportFile, error) {
	return r.getOne(ctx, getImportQuery, id)
}

// GetForUpdate retrieves a record and locks it
func (r *PostgresImportRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*ImportFile, error) {
	return r.getOne(ctx, getImportForUpdateQuery, id)
}

func (r *PostgresImportRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*ImportFile, error) {
	f, err := scanImport(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return f, nil
}

// ExistsForCompanyMonth reports whether the company already has a file for month
func (r *PostgresImportRepository) ExistsForCompanyMonth(ctx context.Context, companyID uuid.UUID, month time.Time) (bool, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, existsImportQuery, companyID, common.FirstOfMonth(month)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check import: %w", err)
	}
	return exists, nil
}

// List returns records newest first
func (r *PostgresImportRepository) List(ctx context.Context, filter Filter) ([]*ImportFile, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != nil {
		add("f.user_id = $%d", *filter.UserID)
	}
	if filter.CompanyID != nil {
		add("f.company_id = $%d", *filter.CompanyID)
	}
	if filter.Status != nil {
		add("f.status = $%d", string(*filter.Status))
	}

	query := importSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY f.month DESC, c.name`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	return r.query(ctx, query, args...)
}

// ListStale returns pending records last updated before the cutoff, oldest first
func (r *PostgresImportRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*ImportFile, error) {
	return r.query(ctx, listStaleQuery, before, limit)
}

func (r *PostgresImportRepository) query(ctx context.Context, query string, args ...any) ([]*ImportFile, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var files []*ImportFile
	for rows.Next() {
		f, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func scanImport(row pgx.Row) (*ImportFile, error) {
	var (
		f      ImportFile
		status string
	)
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.UserEmail,
		&f.CompanyID,
		&f.CompanyName,
		&f.Month,
		&f.FilePath,
		&f.FileName,
		&status,
		&f.Revision,
		&f.ProcessedRevision,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = Status(status)
	return &f, nil
}
