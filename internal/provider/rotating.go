package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragchat/internal/logging"
	"github.com/fyrsmithlabs/ragchat/internal/metrics"
)

// DefaultRetryDelay is the pause between a rate-limited attempt and the
// attempt with the next key.
const DefaultRetryDelay = 500 * time.Millisecond

// RotatingOptions configures a Rotating provider.
type RotatingOptions struct {
	// RetryDelay defaults to DefaultRetryDelay. Negative disables the pause.
	RetryDelay time.Duration
	// RequestsPerMinute caps outbound calls. Zero disables the limit.
	RequestsPerMinute int

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Rotating is a Provider that tries each key of a CredentialPool at most
// once per request, moving to the next key on a 429.
type Rotating struct {
	backend    Backend
	pool       *CredentialPool
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewRotating wraps backend with key rotation over pool.
func NewRotating(backend Backend, pool *CredentialPool, opts RotatingOptions) *Rotating {
	r := &Rotating{
		backend:    backend,
		pool:       pool,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if r.pool == nil {
		r.pool = NewCredentialPool(nil)
	}
	if r.retryDelay == 0 {
		r.retryDelay = DefaultRetryDelay
	}
	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), burst)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNop()
	}
	return r
}

// Name returns the backend name.
func (r *Rotating) Name() string { return r.backend.Name() }

// Configured reports whether at least one key is loaded.
func (r *Rotating) Configured() bool { return r.pool.Len() > 0 }

// Pool returns the credential pool.
func (r *Rotating) Pool() *CredentialPool { return r.pool }

// Generate calls the backend, rotating keys on rate limiting. It makes at
// most one attempt per key.
func (r *Rotating) Generate(ctx context.Context, req Request) (string, error) {
	n := r.pool.Len()
	if n == 0 {
		return "", fmt.Errorf("%w: no API keys configured for %s", ErrUpstream, r.Name())
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return "", fmt.Errorf("%w: outbound rate limit: %v", ErrServiceUnavailable, err)
		}
	}

	name := r.Name()
	for attempt := 1; attempt <= n; attempt++ {
		idx, key, ok := r.pool.Current()
		if !ok {
			break
		}

		start := time.Now()
		text, err := r.backend.Call(ctx, key, req)
		if err == nil {
			r.metrics.ProviderAttempts.WithLabelValues(name, "ok").Inc()
			r.logger.Debug(ctx, "generation succeeded",
				zap.String("provider", name),
				zap.Stringer("kind", req.Kind),
				logging.KeyIndex(idx),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)))
			return text, nil
		}

		if ctx.Err() != nil {
			r.metrics.ProviderAttempts.WithLabelValues(name, "cancelled").Inc()
			return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}

		if !IsRateLimited(err) {
			r.metrics.ProviderAttempts.WithLabelValues(name, "error").Inc()
			return "", classify(ctx, err)
		}

		r.metrics.ProviderAttempts.WithLabelValues(name, "rate_limited").Inc()
		if r.pool.Advance(idx) {
			r.metrics.CredentialRotations.WithLabelValues(name).Inc()
		}
		r.logger.Warn(ctx, "API key rate limited",
			zap.String("provider", name),
			logging.KeyIndex(idx),
			zap.Int("attempt", attempt),
			zap.Int("keys", n))

		if attempt < n && r.retryDelay > 0 {
			t := time.NewTimer(r.retryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			case <-t.C:
			}
		}
	}

	return "", fmt.Errorf("%w: %d keys tried for %s", ErrRateLimited, n, name)
}

// Probe makes a minimal generation call to check the backend is reachable.
func (r *Rotating) Probe(ctx context.Context) error {
	_, err := r.Generate(ctx, Request{Kind: KindProbe})
	return err
}

var _ Provider = (*Rotating)(nil)
