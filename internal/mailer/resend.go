// Package mailer sends device-security emails through an HTTP
// transactional provider. Missing credentials disable sending without
// failing callers.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/logger"
)

const resendEndpoint = "https://api.resend.com/emails"

// Message is one outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message. The return reports delivery; failures are
// logged, never propagated.
type Sender interface {
	Send(ctx context.Context, msg Message) bool
}

// ResendSender delivers mail through the Resend HTTP API
type ResendSender struct {
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewResendSender creates a sender. An empty API key yields a sender
// that logs a warning and reports false on every Send.
func NewResendSender(cfg *config.EmailConfig, log *logger.Logger) *ResendSender {
	return &ResendSender{
		apiKey: cfg.ResendAPIKey,
		from:   cfg.From,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.WithComponent("mailer"),
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Send posts the message to the provider. Email is best-effort
// throughout the device flow; every failure path returns false.
func (s *ResendSender) Send(ctx context.Context, msg Message) bool {
	if s.apiKey == "" {
		s.logger.Warn().Str("to", msg.To).Msg("email skipped: no API key configured")
		return false
	}

	body, err := json.Marshal(resendPayload{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode email payload")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build email request")
		return false
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("to", msg.To).Msg("email delivery failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("to", msg.To).
			Msg("email provider rejected the message")
		return false
	}

	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return true
}
