// Package moderation asks a remote classifier whether user content is
// offensive before it is accepted.
package moderation

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/postmod/apiserver/internal/metrics"
)

// ErrUnavailable is returned by a fail-closed gate when the classifier
// could not give an answer.
var ErrUnavailable = errors.New("moderation: service unavailable")

const taskContentModeration = "content_moderation"

// Gate decides whether content may be published.
type Gate interface {
	IsOffensive(ctx context.Context, content string) (bool, error)
}

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// FailClosed turns an unreachable classifier into ErrUnavailable
	// instead of letting the content through.
	FailClosed bool
}

type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger *slog.Logger
}

type request struct {
	InputText string `json:"input_text"`
	Task      string `json:"task"`
}

type response struct {
	IsOffensive bool `json:"is_offensive"`
}

// leveledSlog adapts slog to retryablehttp. Intermediate failures are
// retried, so they are logged at WARN.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Debug(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "moderation")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	// Hand the last response back instead of a "giving up" error so the
	// status code can be logged.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, http: retryClient, logger: logger}
}

// IsOffensive reports the classifier's verdict for content. When the
// classifier cannot be reached, times out, or answers with anything but
// 200, the content is treated as clean unless the client is fail-closed.
func (c *Client) IsOffensive(ctx context.Context, content string) (bool, error) {
	start := time.Now()
	offensive, err := c.classify(ctx, content)
	metrics.ModerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ModerationChecks.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		if c.cfg.FailClosed {
			c.logger.Error("moderation unavailable, rejecting submission", "error", err)
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.logger.Warn("moderation unavailable, allowing submission", "error", err)
		return false, nil
	}

	if offensive {
		metrics.ModerationChecks.WithLabelValues(metrics.OutcomeOffensive).Inc()
	} else {
		metrics.ModerationChecks.WithLabelValues(metrics.OutcomeClean).Inc()
	}
	return offensive, nil
}

func (c *Client) classify(ctx context.Context, content string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(request{InputText: content, Task: taskContentModeration})
	if err != nil {
		return false, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return result.IsOffensive, nil
}
