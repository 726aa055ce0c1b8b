// Package loader provides document.Loader implementations used outside a
// browser: one that accepts every script and one that fetches scripts over
// HTTP to confirm they are reachable.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/gateways/document"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// NopLoader treats every script as loaded.
type NopLoader struct{}

func (NopLoader) Load(context.Context, string) error { return nil }

// Options configures an HTTPLoader.
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	// RPS limits fetches per second across the loader; <= 0 means unlimited.
	RPS    float64
	Logger log.Logger
}

// HTTPLoader fetches scripts with GET and fails on transport errors and
// non-2xx responses.
type HTTPLoader struct {
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  log.Logger
}

// NewHTTPLoader builds an HTTPLoader.
func NewHTTPLoader(opts Options) *HTTPLoader {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	logger = log.Component(logger, "loader")
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return &HTTPLoader{client: client, timeout: opts.Timeout, limiter: limiter, logger: logger}
}

// Load fetches src and discards the body.
func (l *HTTPLoader) Load(ctx context.Context, src string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Debug(map[string]any{"src": src, "error": err}, "script_fetch_failed")
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	l.logger.Debug(map[string]any{
		"src":      src,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}, "script_fetched")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

var (
	_ document.Loader = NopLoader{}
	_ document.Loader = (*HTTPLoader)(nil)
)
