// Package email dispatches sequence step emails through an HTTP provider.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/sony/gobreaker/v2"
)

// ErrProviderUnavailable is returned while the circuit breaker is open.
var ErrProviderUnavailable = errors.New("email provider unavailable")

// HTTPSenderConfig configures the provider client.
type HTTPSenderConfig struct {
	BaseURL          string
	APIKey           string
	FromAddress      string
	RequestTimeout   time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultHTTPSenderConfig returns production defaults.
func DefaultHTTPSenderConfig() HTTPSenderConfig {
	return HTTPSenderConfig{
		RequestTimeout:   10 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// HTTPSender implements services.EmailSender against a JSON email API. A
// circuit breaker sheds load while the provider is failing so a broken
// provider does not stall every due enrollment in a pass.
type HTTPSender struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	config  HTTPSenderConfig
	logger  *slog.Logger
}

// NewHTTPSender creates a new HTTP email sender.
func NewHTTPSender(config HTTPSenderConfig, logger *slog.Logger) *HTTPSender {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "email-provider",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &HTTPSender{
		client:  &http.Client{Timeout: config.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		config:  config,
		logger:  logger,
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send dispatches an email and returns the provider's message id.
func (s *HTTPSender) Send(ctx context.Context, email services.OutboundEmail) (string, error) {
	id, err := s.breaker.Execute(func() (string, error) {
		return s.send(ctx, email)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrProviderUnavailable
	}
	return id, err
}

func (s *HTTPSender) send(ctx context.Context, email services.OutboundEmail) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:    s.config.FromAddress,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.Body,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("email provider returned %d: %s", resp.StatusCode, payload)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.ID, nil
}
