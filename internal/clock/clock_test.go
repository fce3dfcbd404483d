package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_SleepAdvancesTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)

	require.NoError(t, f.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, f.Sleep(context.Background(), 500*time.Millisecond))

	assert.Equal(t, start.Add(2500*time.Millisecond), f.Now())
	assert.Equal(t, []time.Duration{2 * time.Second, 500 * time.Millisecond}, f.Sleeps())
}

func TestFake_SleepHonorsCancelledContext(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.Sleeps())
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Real().Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
