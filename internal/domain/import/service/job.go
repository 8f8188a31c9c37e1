package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/parser"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	"github.com/FACorreiaa/sales-manager/internal/domain/import/sniffer"
	"github.com/FACorreiaa/sales-manager/pkg/observability"
	"github.com/FACorreiaa/sales-manager/pkg/queue"
	"github.com/FACorreiaa/sales-manager/pkg/storage"
)

// ImportJob asks for one revision of a record to be imported
type ImportJob struct {
	ImportID uuid.UUID `json:"import_id"`
	Revision int       `json:"revision"`
}

// Outcome of one job run
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeError    Outcome = "error"
	OutcomeSkipped  Outcome = "skipped" // Already applied, superseded or deleted
	OutcomeFailed   Outcome = "failed"  // Infrastructure error, will be retried
)

// ProcessResult reports one job run
type ProcessResult struct {
	Outcome   Outcome
	Rows      int
	Rejection *parser.ParseError
}

// Process runs the import job: parse the blob, then either aggregate the rows
// and mark the record IMPORTED, or mark it ERROR when the file yields no rows.
// The aggregate writes and the status change commit together, and a revision
// that was already applied is skipped, so redelivery never double counts.
// Returned errors are infrastructure failures and should be retried.
func (s *ImportService) Process(ctx context.Context, job ImportJob) (result *ProcessResult, err error) {
	ctx, span := s.tracer.Start(ctx, "import.Process")
	start := time.Now()
	defer func() {
		outcome := OutcomeFailed
		if result != nil {
			outcome = result.Outcome
		}
		observability.ImportsTotal.WithLabelValues(string(outcome)).Inc()
		observability.ImportDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

		span.SetAttributes(attribute.String("import.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "ok")
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("import.id", job.ImportID.String()),
		attribute.Int("import.revision", job.Revision),
	)

	logger := s.logger.With(slog.String("import_id", job.ImportID.String()), slog.Int("revision", job.Revision))

	record, err := s.repo.Get(ctx, job.ImportID)
	if errors.Is(err, common.ErrNotFound) {
		logger.Warn("import record no longer exists")
		return &ProcessResult{Outcome: OutcomeSkipped}, nil
	}
	if err != nil {
		return nil, err
	}
	if !applies(record, job) {
		logger.Info("import revision already handled",
			slog.Int("current_revision", record.Revision),
			slog.Int("processed_revision", record.ProcessedRevision))
		return &ProcessResult{Outcome: OutcomeSkipped}, nil
	}

	data, err := storage.ReadAll(ctx, s.store, record.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", record.FilePath, err)
	}
	parsed := s.parse(data)

	result = &ProcessResult{Rows: len(parsed.Rows), Rejection: parsed.Rejection}
	var events []repository.Event
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.GetForUpdate(ctx, job.ImportID)
		if err != nil {
			return err
		}
		// A replacement may have committed while the file was being parsed
		if !applies(before, job) {
			result.Outcome = OutcomeSkipped
			return nil
		}

		after := *before
		after.ProcessedRevision = job.Revision
		if parsed.Empty() {
			after.Status = repository.StatusError
			result.Outcome = OutcomeError
		} else {
			if _, err := s.sales.AggregateTx(ctx, tx, before.CompanyID, before.Month, parsed.Rows); err != nil {
				return err
			}
			after.Status = repository.StatusImported
			result.Outcome = OutcomeImported
		}

		events, err = repo.Save(ctx, before, &after)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &ProcessResult{Outcome: OutcomeSkipped}, nil
		}
		return nil, err
	}

	switch result.Outcome {
	case OutcomeImported:
		observability.RowsAggregated.Add(float64(result.Rows))
		logger.Info("sales file imported", slog.Int("rows", result.Rows))
	case OutcomeError:
		attrs := []any{slog.Int("total_rows", parsed.TotalRows), slog.String("layout", parsed.Layout)}
		if parsed.Rejection != nil {
			attrs = append(attrs, slog.String("reason", parsed.Rejection.Error()))
		}
		logger.Warn("sales file rejected", attrs...)
	}

	s.publish(ctx, events)
	return result, nil
}

func applies(f *repository.ImportFile, job ImportJob) bool {
	return f.Revision == job.Revision && f.ProcessedRevision < job.Revision
}

// parse picks the parser from the file content. Formats outside the allowed
// extensions, and unknown content, parse to an empty result.
func (s *ImportService) parse(data []byte) *parser.ParseResult {
	format := sniffer.Detect(data)
	if !s.allows(format) {
		return &parser.ParseResult{Rejection: &parser.ParseError{Row: 1, Message: fmt.Sprintf("unsupported file content %q", format)}}
	}

	p := parser.ForFormat(format, s.cfg.Currency)
	if p == nil {
		return &parser.ParseResult{Rejection: &parser.ParseError{Row: 1, Message: "no parser for file"}}
	}
	return p.Parse(bytes.NewReader(data))
}

func (s *ImportService) allows(format sniffer.Format) bool {
	for _, ext := range s.cfg.AllowedExtensions {
		switch {
		case format == sniffer.FormatXLSX && (ext == "xlsx" || ext == "xlsm"):
			return true
		case format == sniffer.FormatCSV && ext == "csv":
			return true
		}
	}
	return false
}

// HandleJob adapts Process to the queue worker
func (s *ImportService) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload ImportJob
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("invalid import job payload: %w", err)
	}
	_, err := s.Process(ctx, payload)
	return err
}

// RequeueStale enqueues pending records untouched for longer than olderThan.
// It recovers jobs lost between a commit and its enqueue.
func (s *ImportService) RequeueStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.repo.ListStale(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	events := make([]repository.Event, 0, len(stale))
	for _, f := range stale {
		events = append(events, repository.FileReplaced{ImportID: f.ID, Revision: f.Revision})
	}
	if len(events) == 0 || s.publisher == nil {
		return 0, nil
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		return 0, err
	}
	return len(events), nil
}

// QueueEnqueuer submits import jobs to the Redis queue
type QueueEnqueuer struct {
	queue *queue.RedisQueue
}

// NewQueueEnqueuer creates an enqueuer on q
func NewQueueEnqueuer(q *queue.RedisQueue) *QueueEnqueuer {
	return &QueueEnqueuer{queue: q}
}

func (e *QueueEnqueuer) EnqueueImport(ctx context.Context, job ImportJob) error {
	_, err := e.queue.Enqueue(ctx, job)
	return err
}
