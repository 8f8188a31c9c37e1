package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/import/repository"
	notificationsvc "github.com/FACorreiaa/sales-manager/internal/domain/notification/service"
)

// Notification verbs
const (
	VerbImported = "foi importado"
	VerbFailed   = "falhou ao ser importado"

	actorType = "import_file"
)

// EventPublisher reacts to import record events. It runs after the change
// that produced the events has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, events ...repository.Event) error
}

// Enqueuer submits import jobs
type Enqueuer interface {
	EnqueueImport(ctx context.Context, job ImportJob) error
}

// Notifier delivers notifications to users
type Notifier interface {
	Notify(ctx context.Context, in notificationsvc.Input) error
}

// Dispatcher enqueues a job for every replaced file and notifies the owner
// when a record reaches IMPORTED or ERROR.
type Dispatcher struct {
	repo     repository.ImportRepository
	enqueuer Enqueuer
	notifier Notifier
	logger   *slog.Logger
}

var _ EventPublisher = (*Dispatcher)(nil)

// NewDispatcher creates the event dispatcher
func NewDispatcher(repo repository.ImportRepository, enqueuer Enqueuer, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, enqueuer: enqueuer, notifier: notifier, logger: logger}
}

// Publish handles every event and joins their errors
func (d *Dispatcher) Publish(ctx context.Context, events ...repository.Event) error {
	var errs []error
	for _, event := range events {
		if err := d.handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) handle(ctx context.Context, event repository.Event) error {
	switch e := event.(type) {
	case repository.FileReplaced:
		if err := d.enqueuer.EnqueueImport(ctx, ImportJob{ImportID: e.ImportID, Revision: e.Revision}); err != nil {
			return fmt.Errorf("enqueue import %s: %w", e.ImportID, err)
		}
		d.logger.Info("import job enqueued",
			slog.String("import_id", e.ImportID.String()),
			slog.Int("revision", e.Revision))
		return nil

	case repository.StatusChanged:
		verb, ok := verbFor(e.To)
		if !ok {
			return nil
		}
		return d.notify(ctx, e.ImportID, verb)

	default:
		return fmt.Errorf("unknown import event %T", event)
	}
}

func verbFor(status repository.Status) (string, bool) {
	switch status {
	case repository.StatusImported:
		return VerbImported, true
	case repository.StatusError:
		return VerbFailed, true
	default:
		return "", false
	}
}

func (d *Dispatcher) notify(ctx context.Context, importID uuid.UUID, verb string) error {
	f, err := d.repo.Get(ctx, importID)
	if err != nil {
		return fmt.Errorf("load import %s for notification: %w", importID, err)
	}
	if f.UserID == nil {
		d.logger.Debug("import has no owner, skipping notification", slog.String("import_id", importID.String()))
		return nil
	}

	return d.notifier.Notify(ctx, notificationsvc.Input{
		RecipientID:    *f.UserID,
		RecipientEmail: f.UserEmail,
		ActorType:      actorType,
		ActorID:        f.ID,
		ActorLabel:     f.String(),
		Verb:           verb,
	})
}
