package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(url string, failClosed bool) *Client {
	return NewClient(Config{
		URL:        url,
		APIKey:     "test-key",
		Timeout:    200 * time.Millisecond,
		MaxRetries: 0,
		FailClosed: failClosed,
	}, discardLogger())
}

func TestIsOffensive_SendsContractRequest(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_offensive": false}`))
	}))
	defer srv.Close()

	offensive, err := newTestClient(srv.URL, false).IsOffensive(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, offensive)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, request{InputText: "hello", Task: "content_moderation"}, gotBody)
}

func TestIsOffensive_Verdicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(response{IsOffensive: req.InputText == "fuck"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, false)

	offensive, err := client.IsOffensive(context.Background(), "fuck")
	require.NoError(t, err)
	assert.True(t, offensive)

	offensive, err = client.IsOffensive(context.Background(), "lovely weather")
	require.NoError(t, err)
	assert.False(t, offensive)
}

func TestIsOffensive_MissingFieldIsClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	offensive, err := newTestClient(srv.URL, false).IsOffensive(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, offensive)
}

func TestIsOffensive_Unavailable(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"non-200", failing.URL},
		{"timeout", slow.URL},
		{"connection refused", closedURL},
	}

	for _, tc := range tests {
		t.Run(tc.name+"/fail-open", func(t *testing.T) {
			offensive, err := newTestClient(tc.url, false).IsOffensive(context.Background(), "anything")
			require.NoError(t, err)
			assert.False(t, offensive)
		})
		t.Run(tc.name+"/fail-closed", func(t *testing.T) {
			offensive, err := newTestClient(tc.url, true).IsOffensive(context.Background(), "anything")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnavailable))
			assert.False(t, offensive)
		})
	}
}

func TestIsOffensive_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"is_offensive": true}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2}, discardLogger())
	offensive, err := client.IsOffensive(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, offensive)
	assert.Equal(t, int32(2), calls.Load())
}
