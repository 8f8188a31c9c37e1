package service

import (
	"context"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends email through Resend
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender returns nil when apiKey is empty, so callers can pass the
// result straight to NewService.
func NewResendSender(apiKey, from string) EmailSender {
	if apiKey == "" {
		return nil
	}
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(_ context.Context, to, subject, htmlBody string) error {
	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	return err
}
