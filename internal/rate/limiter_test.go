package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return base }

	r, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, r.Allowed)
	require.Equal(t, int64(1), r.Remaining)

	r, _ = l.Allow(ctx, "1.2.3.4")
	require.True(t, r.Allowed)

	r, _ = l.Allow(ctx, "1.2.3.4")
	require.False(t, r.Allowed)
	require.Equal(t, time.Minute, r.RetryAfter)

	// otra key no comparte contador
	r, _ = l.Allow(ctx, "5.6.7.8")
	require.True(t, r.Allowed)

	// ventana siguiente
	l.now = func() time.Time { return base.Add(time.Minute) }
	r, _ = l.Allow(ctx, "1.2.3.4")
	require.True(t, r.Allowed)
}
