// Package service accepts sales spreadsheets and runs the import job that
// turns them into monthly sales aggregates.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	salesrepo "github.com/FACorreiaa/sales-manager/internal/domain/sales/repository"
	salessvc "github.com/FACorreiaa/sales-manager/internal/domain/sales/service"
	"github.com/FACorreiaa/sales-manager/pkg/db"
	"github.com/FACorreiaa/sales-manager/pkg/observability"
	"github.com/FACorreiaa/sales-manager/pkg/storage"
)

// SuccessMessage is shown after a file is accepted
const SuccessMessage = "Arquivo adicionado! Assim que for importado você será notificado."

const uploadFolder = "imports"

// SalesAggregator is the part of the sales service the import pipeline needs
type SalesAggregator interface {
	FindCompanyByName(ctx context.Context, name string) (*salesrepo.Company, error)
	LookupOrCreateCompany(ctx context.Context, name string) (*salesrepo.Company, error)
	AggregateTx(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, month time.Time, rows []parser.Row) (*salessvc.AggregateResult, error)
}

var _ SalesAggregator = (*salessvc.Service)(nil)

// Config tunes the import pipeline
type Config struct {
	AllowedExtensions []string // Lowercase, without the dot
	Currency          string
}

// ImportService handles submissions and runs import jobs
type ImportService struct {
	repo      repository.ImportRepository
	sales     SalesAggregator
	store     storage.Storage
	tx        db.TxRunner
	publisher EventPublisher
	validate  *validator.Validate
	tracer    trace.Tracer
	cfg       Config
	logger    *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(
	repo repository.ImportRepository,
	sales SalesAggregator,
	store storage.Storage,
	tx db.TxRunner,
	publisher EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *ImportService {
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{"xlsx"}
	}
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	return &ImportService{
		repo:      repo,
		sales:     sales,
		store:     store,
		tx:        tx,
		publisher: publisher,
		validate:  newValidator(),
		tracer:    observability.Tracer("sales-manager/import"),
		cfg:       cfg,
		logger:    logger,
	}
}

// SubmitInput is one upload from the import form
type SubmitInput struct {
	UserID      *uuid.UUID `form:"-"`
	UserEmail   string     `form:"-" validate:"omitempty,email"`
	CompanyName string     `form:"company" validate:"required,max=150"`
	Month       time.Time  `form:"month" validate:"required"`
	FileName    string     `form:"file" validate:"required"`
	Content     []byte     `form:"file" validate:"min=1"`
}

// SubmitResult is an accepted upload
type SubmitResult struct {
	Import  *repository.ImportFile
	Message string
}

// Submit validates and stores an upload, creates its record in PROCESSING and
// enqueues the import job. Rejections are common.ValidationError(s).
func (s *ImportService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	in.CompanyName = strings.TrimSpace(in.CompanyName)

	var verrs common.ValidationErrors
	if err := s.validate.Struct(in); err != nil {
		mapped := validationErrors(err)
		if !errors.As(mapped, &verrs) {
			return nil, mapped
		}
	}
	if in.FileName != "" {
		var ve *common.ValidationError
		if errors.As(checkExtension(in.FileName, s.cfg.AllowedExtensions), &ve) {
			verrs = append(verrs, ve)
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	month := common.FirstOfMonth(in.Month)

	// Only an existing company can already have a file for the month
	existing, err := s.sales.FindCompanyByName(ctx, in.CompanyName)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		dup, err := s.repo.ExistsForCompanyMonth(ctx, existing.ID, month)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, duplicateError(month, existing.Name)
		}
	}

	info, err := s.store.Upload(ctx, uploadFolder, in.FileName, contentType(in.FileName), bytes.NewReader(in.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	company, err := s.sales.LookupOrCreateCompany(ctx, in.CompanyName)
	if err != nil {
		s.discard(ctx, info.Path)
		return nil, err
	}

	record := &repository.ImportFile{
		UserID:      in.UserID,
		UserEmail:   in.UserEmail,
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Month:       month,
		FilePath:    info.Path,
		FileName:    in.FileName,
		Status:      repository.StatusProcessing,
		Revision:    1,
	}
	events, err := s.repo.Create(ctx, record)
	if err != nil {
		s.discard(ctx, info.Path)
		if errors.Is(err, common.ErrConflict) {
			return nil, duplicateError(month, company.Name)
		}
		return nil, err
	}

	s.logger.Info("sales file submitted",
		slog.String("import_id", record.ID.String()),
		slog.String("company", company.Name),
		slog.String("month", month.Format("2006-01")))

	s.publish(ctx, events)
	return &SubmitResult{Import: record, Message: SuccessMessage}, nil
}

// ReplaceFile swaps the blob of an existing record. A new blob starts a new
// revision, resets the status to PROCESSING and enqueues the job again.
func (s *ImportService) ReplaceFile(ctx context.Context, id uuid.UUID, fileName string, content []byte) (*repository.ImportFile, error) {
	if err := checkExtension(fileName, s.cfg.AllowedExtensions); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, &common.ValidationError{Field: "file", Message: "O arquivo enviado está vazio."}
	}

	info, err := s.store.Upload(ctx, uploadFolder, fileName, contentType(fileName), bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	var (
		after   repository.ImportFile
		oldPath string
		events  []repository.Event
	)
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldPath = before.FilePath
		after = *before
		after.ReplaceFile(info.Path, fileName)

		events, err = repo.Save(ctx, before, &after)
		return err
	})
	if err != nil {
		s.discard(ctx, info.Path)
		return nil, err
	}

	s.discard(ctx, oldPath)
	s.logger.Info("sales file replaced",
		slog.String("import_id", id.String()),
		slog.Int("revision", after.Revision))

	s.publish(ctx, events)
	return &after, nil
}

// Get retrieves an import record
func (s *ImportService) Get(ctx context.Context, id uuid.UUID) (*repository.ImportFile, error) {
	return s.repo.Get(ctx, id)
}

// List lists import records
func (s *ImportService) List(ctx context.Context, filter repository.Filter) ([]*repository.ImportFile, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// publish dispatches committed events. Failures are logged: the stale import
// sweep re-enqueues records whose job was never submitted.
func (s *ImportService) publish(ctx context.Context, events []repository.Event) {
	if len(events) == 0 || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish import events", slog.Any("error", err))
	}
}

func (s *ImportService) discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.store.Delete(ctx, path); err != nil {
		s.logger.Warn("failed to delete blob", slog.String("path", path), slog.Any("error", err))
	}
}

func duplicateError(month time.Time, company string) error {
	return &common.ValidationError{
		Message: fmt.Sprintf("O arquivo do mês de %s já foi importado para %s", common.MonthYear(month), company),
	}
}

func contentType(fileName string) string {
	switch strings.ToLower(fileName[strings.LastIndex(fileName, ".")+1:]) {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "xlsm":
		return "application/vnd.ms-excel.sheet.macroEnabled.12"
	case "csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
