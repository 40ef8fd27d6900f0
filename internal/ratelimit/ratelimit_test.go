package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCallLimiter_Budget(t *testing.T) {
	l := NewCallLimiter(0, 2, time.UTC, discard())
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.ErrorIs(t, l.Wait(ctx), ErrBudgetExhausted)
	assert.Equal(t, 2, l.Stats()["used"])
}

func TestCallLimiter_ResetsAtLocalMidnight(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*3600)
	current := time.Date(2026, 3, 2, 23, 30, 0, 0, almaty)
	l := NewCallLimiter(0, 1, almaty, discard())
	l.now = func() time.Time { return current }
	l.resetTime = l.nextMidnight()
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, almaty), l.resetTime)

	require.NoError(t, l.Wait(context.Background()))
	assert.ErrorIs(t, l.Wait(context.Background()), ErrBudgetExhausted)

	// 23:59 is still the same local day
	current = current.Add(29 * time.Minute)
	assert.ErrorIs(t, l.Wait(context.Background()), ErrBudgetExhausted)

	// 00:00 local, 19:00 UTC of the previous calendar day
	current = time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, almaty), l.Stats()["reset_time"])
}

func TestCallLimiter_WaitHonoursContext(t *testing.T) {
	l := NewCallLimiter(time.Hour, 0, time.UTC, discard())
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}
