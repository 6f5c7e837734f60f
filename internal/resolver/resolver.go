// Package resolver turns a canonical video locator into a direct, downloadable
// media URL by asking an ordered list of untrusted providers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/memohai/playbot/internal/media"
)

var (
	// ErrNoProviderAvailable is returned when every provider failed.
	ErrNoProviderAvailable = errors.New("no provider could resolve the media")
	// ErrInvalidResult is returned when a provider answers without a usable URL.
	ErrInvalidResult = errors.New("provider returned no usable url")
)

// DefaultProviderTimeout bounds a single provider attempt.
const DefaultProviderTimeout = 45 * time.Second

// Attempt outcomes reported to the observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeInvalid = "invalid"
)

// Request describes what to resolve.
type Request struct {
	Locator string
	Kind    media.MediaType
	Quality string
}

// Result is a resolved media location. URL always has an http or https scheme.
type Result struct {
	URL      string
	Title    string
	Mime     string
	Provider string
}

// Provider resolves a request against one remote service.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, req Request) (Result, error)
}

// Observer receives one call per provider attempt.
type Observer func(provider, outcome string, elapsed time.Duration)

// Option configures a Cascade.
type Option func(*Cascade)

// WithObserver installs an attempt observer, typically a metrics recorder.
func WithObserver(fn Observer) Option {
	return func(c *Cascade) {
		c.observe = fn
	}
}

// Cascade tries providers in order and returns the first valid result.
type Cascade struct {
	providers []Provider
	timeout   time.Duration
	observe   Observer
	logger    *slog.Logger
}

// NewCascade builds a Cascade. Each provider attempt runs under its own timeout.
func NewCascade(log *slog.Logger, timeout time.Duration, providers []Provider, opts ...Option) *Cascade {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	c := &Cascade{
		providers: append([]Provider(nil), providers...),
		timeout:   timeout,
		logger:    log.With(slog.String("service", "resolver")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns provider names in attempt order.
func (c *Cascade) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Resolve asks each provider in order. Later providers are never invoked once
// one succeeds. Exhaustion returns an error matching ErrNoProviderAvailable
// that carries every provider's failure.
func (c *Cascade) Resolve(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Locator) == "" {
		return Result{}, fmt.Errorf("%w: empty locator", ErrNoProviderAvailable)
	}
	var failures *multierror.Error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			failures = multierror.Append(failures, err)
			break
		}
		res, outcome, err := c.attempt(ctx, p, req)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("provider failed",
			slog.String("provider", p.Name()),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		failures = multierror.Append(failures, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if failures.ErrorOrNil() == nil {
		return Result{}, ErrNoProviderAvailable
	}
	return Result{}, fmt.Errorf("%w: %w", ErrNoProviderAvailable, failures)
}

func (c *Cascade) attempt(ctx context.Context, p Provider, req Request) (res Result, outcome string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, outcome, err = Result{}, OutcomeError, fmt.Errorf("provider panic: %v", r)
		}
		if c.observe != nil {
			c.observe(p.Name(), outcome, time.Since(start))
		}
	}()

	res, err = p.Resolve(attemptCtx, req)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil):
		return Result{}, OutcomeTimeout, err
	case err != nil:
		return Result{}, OutcomeError, err
	}
	res.URL = strings.TrimSpace(res.URL)
	if !media.IsFetchableURL(res.URL) {
		return Result{}, OutcomeInvalid, ErrInvalidResult
	}
	res.Provider = p.Name()
	res.Title = strings.TrimSpace(res.Title)
	if res.Mime == "" {
		res.Mime = media.GuessMime(res.URL, req.Kind)
	}
	return res, OutcomeOK, nil
}
