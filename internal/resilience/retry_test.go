package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campusattend/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// recordingHandler keeps every log record for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(_ string) slog.Handler { return h }

func attrsOf(r slog.Record) map[string]slog.Value {
	out := make(map[string]slog.Value)
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

func newTestRetrier(cfg Config, logger *slog.Logger) (*Retrier, *clock.Fake) {
	fake := clock.NewFake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	r := NewRetrier(logger, cfg, WithClock(fake), WithJitter(func() float64 { return 0 }))
	return r, fake
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	r, fake := newTestRetrier(DefaultConfig(), testLogger)
	calls := 0

	got, err := Do(context.Background(), r, OperationContext{Operation: "getEvent"}, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.Sleeps())
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	r, fake := newTestRetrier(DefaultConfig(), testLogger)
	calls := 0

	got, err := Do(context.Background(), r, OperationContext{Operation: "addRSVP"}, func(ctx context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, WithCode(CodeUnavailable, errors.New("store down"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fake.Sleeps())
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	r, fake := newTestRetrier(DefaultConfig(), testLogger)
	calls := 0
	cause := WithCode(CodePermissionDenied, errors.New("rules rejected write"))

	err := r.Run(context.Background(), OperationContext{Operation: "updateEvent"}, func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.Sleeps())
	assert.ErrorIs(t, err, cause)

	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, CategoryStorePermission, classified.Category)
	assert.Equal(t, "You don't have permission to perform this action.", err.Error())
}

func TestDo_Exhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	r, fake := newTestRetrier(cfg, testLogger)
	calls := 0

	err := r.Run(context.Background(), OperationContext{Operation: "checkIn"}, func(ctx context.Context) error {
		calls++
		return WithCode(CodeDeadlineExceeded, errors.New("slow"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, fake.Sleeps(), 2)
	assert.True(t, IsRetryable(err))
}

func TestDo_ZeroRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	r, fake := newTestRetrier(cfg, testLogger)
	calls := 0

	err := r.Run(context.Background(), OperationContext{Operation: "ping"}, func(ctx context.Context) error {
		calls++
		return WithCode(CodeUnavailable, errors.New("down"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.Sleeps())
}

func TestDo_CancelledContextStopsBackoff(t *testing.T) {
	r, _ := newTestRetrier(DefaultConfig(), testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := r.Run(ctx, OperationContext{Operation: "addRSVP"}, func(ctx context.Context) error {
		calls++
		cancel()
		return WithCode(CodeUnavailable, errors.New("down"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_LogsContext(t *testing.T) {
	h := &recordingHandler{}
	r, _ := newTestRetrier(DefaultConfig(), slog.New(h))
	calls := 0

	_ = r.Run(context.Background(), OperationContext{Operation: "checkIn", UserID: "u1", EventID: "e1"}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return WithCode(CodeAborted, errors.New("contention"))
		}
		return WithCode(CodeInvalidArgument, errors.New("bad"))
	})

	require.Len(t, h.records, 2)
	assert.Equal(t, slog.LevelWarn, h.records[0].Level)
	assert.Equal(t, slog.LevelError, h.records[1].Level)

	first := attrsOf(h.records[0])
	assert.Equal(t, "checkIn", first["operation"].String())
	assert.Equal(t, "u1", first["user_id"].String())
	assert.Equal(t, "e1", first["event_id"].String())
	assert.Equal(t, int64(1), first["attempt"].Int64())
	assert.Equal(t, int64(1000), first["delay_ms"].Int64())

	second := attrsOf(h.records[1])
	assert.Equal(t, int64(2), second["attempt"].Int64())
	assert.Equal(t, string(CategoryStoreValidation), second["category"].String())
}

func TestConfig_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{2, 0, 4 * time.Second},
		{3, 0, 8 * time.Second},
		{4, 0, 10 * time.Second},
		{0, 1, 1100 * time.Millisecond},
		{0, -1, 900 * time.Millisecond},
		{3, 1, 8800 * time.Millisecond},
		{10, -1, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Backoff(tt.attempt, tt.jitter), "attempt=%d jitter=%v", tt.attempt, tt.jitter)
	}
}

func TestConfig_BackoffJitterStaysInBounds(t *testing.T) {
	r := NewRetrier(testLogger, DefaultConfig())
	for i := 0; i < 200; i++ {
		d := r.cfg.Backoff(1, r.jitter())
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestRetrier_WithConfig(t *testing.T) {
	r := NewRetrier(testLogger, DefaultConfig())
	cfg := Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	c := r.WithConfig(cfg)
	assert.Equal(t, cfg, c.Config())
	assert.Equal(t, DefaultConfig(), r.Config())
}
