// Package webhook posts automation payloads to user-configured endpoints.
package webhook

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

	"github.com/sony/gobreaker/v2"
)

// ErrWebhookUnavailable is returned while the circuit breaker is open.
var ErrWebhookUnavailable = errors.New("webhook endpoint unavailable")

// HTTPPosterConfig configures the webhook client.
type HTTPPosterConfig struct {
	RequestTimeout   time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultHTTPPosterConfig returns production defaults.
func DefaultHTTPPosterConfig() HTTPPosterConfig {
	return HTTPPosterConfig{
		RequestTimeout:   10 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// HTTPPoster implements services.WebhookPoster. A single circuit breaker
// covers all endpoints; a user pointing rules at a dead server should not
// drag out every evaluation pass with timeouts.
type HTTPPoster struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewHTTPPoster creates a new HTTP webhook poster.
func NewHTTPPoster(config HTTPPosterConfig, logger *slog.Logger) *HTTPPoster {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "automation-webhooks",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &HTTPPoster{
		client:  &http.Client{Timeout: config.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:  logger,
	}
}

// Post delivers the payload as JSON to the given URL.
func (p *HTTPPoster) Post(ctx context.Context, url string, payload map[string]any) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.post(ctx, url, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrWebhookUnavailable
	}
	return err
}

func (p *HTTPPoster) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
