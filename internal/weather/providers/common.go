package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-favorites/internal/common"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client    *http.Client
	Backoff   BackoffConfig
	UserAgent string
}

// DefaultBackoff is a small retry budget: two retries, 500ms then 1s.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

var (
	// ErrTransient is returned once the retry budget for timeouts, 5xx and
	// 429 responses is exhausted. Callers may offer a retry.
	ErrTransient = errors.New("upstream temporarily unavailable")
	// ErrClient is returned for 4xx responses other than 429. Not retried.
	ErrClient = errors.New("upstream rejected request")
	// ErrInvalidResponse is returned when a response lacks the expected
	// fields. Not retried.
	ErrInvalidResponse = errors.New("invalid upstream response")
	// ErrCircuitOpen is returned while the provider's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errTimeout       = errors.New("request timed out")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

var validate = validator.New()

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A rejected request says nothing about the upstream's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrClient)
		},
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Only GET requests are retried, and only after a
// timeout, a 5xx or a 429.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)
		if cfg.UserAgent != "" {
			req.Header.Set("User-Agent", cfg.UserAgent)
		}
		req.Header.Set("Accept", "application/json")

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				if ctx.Err() == nil && isTimeout(execErr) {
					return nil, fmt.Errorf("%w: %v", errTimeout, execErr)
				}
				return nil, execErr
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}

			drain(resp)
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			default:
				return nil, fmt.Errorf("%w: status %d", ErrClient, resp.StatusCode)
			}
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if req.Method != http.MethodGet || attempt >= cfg.Backoff.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrTransient, attempt+1, err)
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}

		attempt++
	}
}

// decodeAndValidate decodes a JSON body into v and checks v's validate tags.
// Any failure is an ErrInvalidResponse.
func decodeAndValidate(body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, errTimeout) || errors.Is(err, errServerError) || errors.Is(err, errRateLimited)
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		common.HasAnyFold(err.Error(), "client.timeout", "i/o timeout", "handshake timeout")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
