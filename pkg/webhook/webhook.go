// Package webhook posts notification events to an external HTTP endpoint,
// such as a chat channel integration.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set
	SignatureHeader = "X-Signature-256"

	// RequestTimeout for webhook requests
	RequestTimeout = 10 * time.Second
)

// Event is the JSON body of one webhook call
type Event struct {
	Type        string    `json:"type"`
	RecipientID string    `json:"recipient_id"`
	ActorType   string    `json:"actor_type"`
	ActorID     string    `json:"actor_id"`
	Text        string    `json:"text"` // Rendered sentence, e.g. "<actor> foi importado"
	OccurredAt  time.Time `json:"occurred_at"`
}

// Client sends events to a single endpoint
type Client struct {
	url    string
	secret []byte
	client *http.Client
	logger *slog.Logger
}

// New creates a webhook client. It returns nil when url is empty.
func New(url, secret string, logger *slog.Logger) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		logger: logger,
	}
}

// Send posts one event. Any non-2xx reply is an error.
func (c *Client) Send(ctx context.Context, ev Event) error {
	if ev.Type == "" {
		return errors.New("webhook event type is required")
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(c.secret, payload))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("webhook rejected", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("webhook sent", "type", ev.Type, "actor_id", ev.ActorID)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
