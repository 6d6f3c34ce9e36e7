package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() HTTPPosterConfig {
	return HTTPPosterConfig{
		RequestTimeout:   time.Second,
		FailureThreshold: 3,
		BreakerTimeout:   time.Minute,
	}
}

func TestHTTPPoster_PostsJSON(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	poster := NewHTTPPoster(testConfig(), nil)
	err := poster.Post(context.Background(), server.URL, map[string]any{
		"rule_name":    "Notify on won deals",
		"trigger_type": "deal_stage_changed",
	})

	require.NoError(t, err)
	assert.Equal(t, "Notify on won deals", received["rule_name"])
	assert.Equal(t, "deal_stage_changed", received["trigger_type"])
}

func TestHTTPPoster_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	poster := NewHTTPPoster(testConfig(), nil)
	err := poster.Post(context.Background(), server.URL, map[string]any{"k": "v"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

func TestHTTPPoster_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	poster := NewHTTPPoster(testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, poster.Post(ctx, server.URL, map[string]any{}))
	}

	err := poster.Post(ctx, server.URL, map[string]any{})
	assert.ErrorIs(t, err, ErrWebhookUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}
