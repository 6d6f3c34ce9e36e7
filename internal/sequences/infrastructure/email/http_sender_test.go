package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) HTTPSenderConfig {
	config := DefaultHTTPSenderConfig()
	config.BaseURL = baseURL
	config.APIKey = "test-key"
	config.FromAddress = "funnel@acme.io"
	config.FailureThreshold = 3
	config.BreakerTimeout = time.Minute
	return config
}

func TestHTTPSender_Send(t *testing.T) {
	var received sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(sendResponse{ID: "msg-123"})
	}))
	defer server.Close()

	sender := NewHTTPSender(testConfig(server.URL), nil)

	id, err := sender.Send(context.Background(), services.OutboundEmail{
		To:      "amy@acme.io",
		Subject: "Hi Amy",
		Body:    "<p>Hello</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)
	assert.Equal(t, "funnel@acme.io", received.From)
	assert.Equal(t, "amy@acme.io", received.To)
}

func TestHTTPSender_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender := NewHTTPSender(testConfig(server.URL), nil)

	_, err := sender.Send(context.Background(), services.OutboundEmail{To: "amy@acme.io"})
	assert.ErrorContains(t, err, "429")
}

func TestHTTPSender_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewHTTPSender(testConfig(server.URL), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sender.Send(ctx, services.OutboundEmail{To: "amy@acme.io"})
		require.Error(t, err)
	}

	// The breaker is open now: no request reaches the provider.
	_, err := sender.Send(ctx, services.OutboundEmail{To: "amy@acme.io"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}
