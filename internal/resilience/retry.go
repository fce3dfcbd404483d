package resilience

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"campusattend/internal/clock"
)

// Config is the retry policy.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns 3 retries starting at 1s, doubling, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// jitterFraction is the maximum relative perturbation applied to each delay.
const jitterFraction = 0.1

// Backoff returns the delay before retry number attempt (0-based). jitter is
// in [-1, 1] and scales the ±10% perturbation.
func (c Config) Backoff(attempt int, jitter float64) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	d := base * (1 + jitter*jitterFraction)
	if ceiling := float64(c.MaxDelay); c.MaxDelay > 0 && d > ceiling {
		d = ceiling
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// OperationContext describes a retried call for logging. It is never persisted.
type OperationContext struct {
	Operation string
	UserID    string
	EventID   string
	Metadata  map[string]any
}

func (o OperationContext) attrs() []any {
	attrs := []any{"operation", o.Operation}
	if o.UserID != "" {
		attrs = append(attrs, "user_id", o.UserID)
	}
	if o.EventID != "" {
		attrs = append(attrs, "event_id", o.EventID)
	}
	for k, v := range o.Metadata {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// Retrier runs operations under a retry policy. Operations must be safe to
// invoke more than once: there is no compensation or rollback.
type Retrier struct {
	logger *slog.Logger
	cfg    Config
	clock  clock.Clock
	jitter func() float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithClock sets the clock used for backoff sleeps.
func WithClock(c clock.Clock) Option {
	return func(r *Retrier) { r.clock = c }
}

// WithJitter replaces the jitter source. f must return values in [-1, 1].
func WithJitter(f func() float64) Option {
	return func(r *Retrier) { r.jitter = f }
}

// NewRetrier returns a Retrier with the given policy.
func NewRetrier(logger *slog.Logger, cfg Config, opts ...Option) *Retrier {
	r := &Retrier{
		logger: logger,
		cfg:    cfg,
		clock:  clock.Real(),
		//nolint:gosec // jitter only spreads retries; it is not security sensitive.
		jitter: func() float64 { return rand.Float64()*2 - 1 },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the retry policy.
func (r *Retrier) Config() Config { return r.cfg }

// WithConfig returns a copy of r using cfg.
func (r *Retrier) WithConfig(cfg Config) *Retrier {
	c := *r
	c.cfg = cfg
	return &c
}

// Run calls op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries are spent. The returned error is a classified *Error.
// Cancelling ctx interrupts a pending backoff sleep.
func (r *Retrier) Run(ctx context.Context, opCtx OperationContext, op func(ctx context.Context) error) error {
	_, err := Do(ctx, r, opCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Run for operations that return a value.
func Do[T any](ctx context.Context, r *Retrier, opCtx OperationContext, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		classified := Classify(err)
		attrs := append(opCtx.attrs(),
			"attempt", attempt+1,
			"kind", string(classified.Kind),
			"category", string(classified.Category),
			"code", string(classified.Code),
			"err", err,
		)

		if !classified.Retryable || attempt >= r.cfg.MaxRetries {
			r.logger.ErrorContext(ctx, "operation failed", attrs...)
			return zero, classified
		}

		delay := r.cfg.Backoff(attempt, r.jitter())
		r.logger.WarnContext(ctx, "transient failure, retrying", append(attrs, "delay_ms", delay.Milliseconds())...)
		if err := r.clock.Sleep(ctx, delay); err != nil {
			r.logger.WarnContext(ctx, "retry abandoned", append(opCtx.attrs(), "attempt", attempt+1, "err", err)...)
			return zero, classified
		}
	}
}
