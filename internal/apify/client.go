// Package apify is a client for running Apify actors synchronously and
// collecting their dataset items.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Item is one dataset record produced by an actor run
type Item map[string]any

// Client runs actors through the platform's run-sync endpoint
type Client struct {
	baseURL    string
	token      string
	runTimeout time.Duration
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger

	// backoff is swapped in tests
	backoff func(attempt int) time.Duration
}

// NewClient creates an actor client. maxRetries is the total number of
// attempts per run; transient failures back off 5s, 10s, 20s between
// attempts.
func NewClient(baseURL, token string, runTimeout time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		runTimeout: runTimeout,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: runTimeout + 30*time.Second,
		},
		logger: logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(5*(1<<attempt)) * time.Second
		},
	}
}

// statusError is a non-2xx response from the platform
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("actor run returned status %d: %s", e.Code, e.Body)
}

// RunActor executes an actor synchronously and returns its dataset
// items. Transient failures are retried with exponential backoff;
// permanent failures and exhausted retries return the last error.
func (c *Client) RunActor(ctx context.Context, actorID string, input any) ([]Item, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.logger.Warn("retrying actor run",
				"actor", actorID,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		items, err := c.runOnce(ctx, actorID, input)
		if err == nil {
			c.logger.Info("actor run completed", "actor", actorID, "items", len(items))
			return items, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("actor run failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) runOnce(ctx context.Context, actorID string, input any) ([]Item, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor input: %w", err)
	}

	query := url.Values{}
	query.Set("token", c.token)
	query.Set("timeout", strconv.Itoa(int(c.runTimeout.Seconds())))

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?%s",
		c.baseURL, url.PathEscape(actorID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor run request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset items: %w", err)
	}
	return items, nil
}

// isTransient reports whether a run failure is worth retrying
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "network", "temporary", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
