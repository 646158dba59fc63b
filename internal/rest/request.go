package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// APIError represents an error response from the service.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // 429 only
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// doRequest performs one HTTP request against a route.
func (c *Client) doRequest(ctx context.Context, method, route, path string, payload any) ([]byte, error) {
	b := c.buckets.get(route)
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.global.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	b.update(resp.Header)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if sec, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
				apiErr.RetryAfter = time.Duration(sec * float64(time.Second))
			}
		}
		return nil, apiErr
	}

	return respBody, nil
}

// doWithRetry performs a request with exponential backoff retry.
// A 429 waits the server-advertised delay instead of the backoff.
func (c *Client) doWithRetry(ctx context.Context, method, route, path string, payload any) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}

			c.logger.Debug("retrying request",
				"attempt", attempt,
				"wait", wait,
				"route", route,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, route, path, payload)
		if err == nil {
			return body, nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, route, path string, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, route, path, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// post performs a POST request with retries.
func (c *Client) post(ctx context.Context, route, path string, payload, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodPost, route, path, payload)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
