package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/sales-manager/internal/domain/notification/repository"
	"github.com/FACorreiaa/sales-manager/pkg/webhook"
)

type memRepo struct {
	created []*repository.Notification
}

func (m *memRepo) Create(_ context.Context, n *repository.Notification) error {
	n.ID = uuid.New()
	n.Unread = true
	m.created = append(m.created, n)
	return nil
}

func (m *memRepo) ListUnread(_ context.Context, _ uuid.UUID, limit int) ([]*repository.Notification, error) {
	if limit < len(m.created) {
		return m.created[:limit], nil
	}
	return m.created, nil
}

func (m *memRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *memRepo) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return int64(len(m.created)), nil
}

type recordingSender struct {
	to, subject, body string
	err               error
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotify_StoresAndEmails(t *testing.T) {
	repo := &memRepo{}
	sender := &recordingSender{}
	svc := NewService(repo, sender, discard())

	in := Input{
		RecipientID:    uuid.New(),
		RecipientEmail: "ana@example.com",
		ActorType:      "import_file",
		ActorID:        uuid.New(),
		ActorLabel:     "Registro de vendas de CompanyX no mês de Julho de 2018",
		Verb:           "foi importado",
	}
	require.NoError(t, svc.Notify(context.Background(), in))

	require.Len(t, repo.created, 1)
	assert.Equal(t, "foi importado", repo.created[0].Verb)
	assert.Equal(t, in.ActorID, repo.created[0].ActorID)
	assert.Equal(t, "ana@example.com", sender.to)
	assert.Equal(t, "Registro de vendas de CompanyX no mês de Julho de 2018 foi importado", sender.subject)
}

func TestNotify_EmailFailureIsNotFatal(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, &recordingSender{err: errors.New("smtp down")}, discard())

	err := svc.Notify(context.Background(), Input{RecipientID: uuid.New(), RecipientEmail: "a@b.c", Verb: "falhou ao ser importado"})
	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
}

func TestNotify_WithoutSender(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, NewResendSender("", "x@y.z"), discard())

	require.NoError(t, svc.Notify(context.Background(), Input{RecipientID: uuid.New(), RecipientEmail: "a@b.c", Verb: "foi importado"}))
	assert.Len(t, repo.created, 1)
}

func TestNotify_RequiresRecipient(t *testing.T) {
	svc := NewService(&memRepo{}, nil, discard())
	assert.Error(t, svc.Notify(context.Background(), Input{Verb: "foi importado"}))
}

type recordingHook struct {
	events []webhook.Event
	err    error
}

func (h *recordingHook) Send(_ context.Context, ev webhook.Event) error {
	h.events = append(h.events, ev)
	return h.err
}

func TestNotify_Webhook(t *testing.T) {
	repo := &memRepo{}
	hook := &recordingHook{}
	svc := NewService(repo, nil, discard()).WithWebhook(hook)

	recipient, actor := uuid.New(), uuid.New()
	require.NoError(t, svc.Notify(context.Background(), Input{
		RecipientID: recipient,
		ActorType:   "import_file",
		ActorID:     actor,
		ActorLabel:  "Registro de vendas de CompanyX no mês de Julho de 2018",
		Verb:        "falhou ao ser importado",
	}))

	require.Len(t, hook.events, 1)
	ev := hook.events[0]
	assert.Equal(t, "notification", ev.Type)
	assert.Equal(t, recipient.String(), ev.RecipientID)
	assert.Equal(t, actor.String(), ev.ActorID)
	assert.Equal(t, "Registro de vendas de CompanyX no mês de Julho de 2018 falhou ao ser importado", ev.Text)

	hook.err = errors.New("endpoint down")
	assert.NoError(t, svc.Notify(context.Background(), Input{RecipientID: recipient, Verb: "foi importado"}))
	assert.Len(t, repo.created, 2)
}
