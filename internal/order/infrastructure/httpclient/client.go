package httpclient

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

	"github.com/sony/gobreaker"

	"github.com/shopmicro/orderflow/internal/order/domain"
	"github.com/shopmicro/orderflow/pkg/retry"
)

const defaultTimeout = 5 * time.Second

// statusError carries a non-2xx upstream response so each client can map it
// onto the domain error taxonomy.
type statusError struct {
	Code int
	Body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.Code)
}

// base wraps one upstream service with a bounded per-call timeout, retry
// with backoff for transport failures, and a circuit breaker. Business
// rejections (4xx) do not trip the breaker and are never retried.
type base struct {
	log     *slog.Logger
	name    string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	policy  retry.Policy
}

func newBase(log *slog.Logger, name, baseURL string) base {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *statusError
			return errors.As(err, &se)
		},
	})
	return base{
		log:     log,
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		cb:      cb,
		policy:  retry.DefaultPolicy(),
	}
}

func (c *base) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.name, err)
		}
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		_, err := c.cb.Execute(func() (any, error) {
			return nil, c.once(ctx, method, path, payload, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(fmt.Errorf("%s circuit open: %w", c.name, domain.ErrUpstreamUnavailable))
		}
		var se *statusError
		if errors.As(err, &se) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *base) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w: %v", c.name, method, path, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.name, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s %s %s: status %d: %w", c.name, method, path, resp.StatusCode, domain.ErrUpstreamUnavailable)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &statusError{Code: resp.StatusCode, Body: data}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name, err)
		}
	}
	return nil
}
