package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_EmptyURL(t *testing.T) {
	assert.Nil(t, New("", "secret", discard()))
}

func TestClient_Send(t *testing.T) {
	var (
		got       Event
		signature string
		body      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		signature = r.Header.Get(SignatureHeader)
		body, _ = io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cret", discard())
	err := c.Send(context.Background(), Event{Type: "notification", ActorType: "import_file", Text: "Registro de vendas de X no mês de Julho de 2018 foi importado"})
	require.NoError(t, err)

	assert.Equal(t, "import_file", got.ActorType)
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, Sign([]byte("s3cret"), body), signature)
}

func TestClient_Send_NoSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "", discard()).Send(context.Background(), Event{Type: "notification"}))
}

func TestClient_Send_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(srv.URL, "", discard())

	assert.EqualError(t, c.Send(context.Background(), Event{Type: "notification"}), "webhook failed with status: 502")
	assert.Error(t, c.Send(context.Background(), Event{}), "type is required")
}
