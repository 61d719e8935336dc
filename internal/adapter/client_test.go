package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collection-watcher/internal/retry"
	"github.com/collection-watcher/internal/watcherrors"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestClient(retryCfg *retry.Config) *RateLimitedClient {
	return NewRateLimitedClient(&ClientConfig{
		Provider:          "test",
		RequestsPerSecond: 1000,
		RequestTimeout:    time.Second,
		Retry:             retryCfg,
	})
}

func TestClientSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := newTestClient(fastRetry()).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClientSendsConfiguredHeaders(t *testing.T) {
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("x-api-key"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewRateLimitedClient(&ClientConfig{
		Provider:          "test",
		RequestsPerSecond: 1000,
		Headers:           map[string]string{"x-api-key": "secret"},
		Retry:             fastRetry(),
	})

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	_, err := newTestClient(fastRetry()).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(fastRetry()).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(fastRetry()).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, watcherrors.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientHonorsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// MaxDelay caps the hint so the test stays fast while still proving the
	// hint path is taken: the observed delay must be >= the capped hint.
	cfg := &retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}

	start := time.Now()
	_, err := newTestClient(cfg).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientRateLimited429WithoutHintUsesBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(fastRetry()).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(fastRetry()).Get(ctx, server.URL)
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	mkResp := func(value string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		return resp
	}

	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("")))
	assert.Equal(t, 3*time.Second, parseRetryAfter(mkResp("3")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("0")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("-5")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("soon")))

	// HTTP-date form: a point in the future yields the remaining delay.
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(mkResp(future))
	assert.Greater(t, got, 8*time.Second)
	assert.LessOrEqual(t, got, 10*time.Second)

	past := time.Now().Add(-10 * time.Second).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp(past)))
}
