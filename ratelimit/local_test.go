package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Allow_AdmitsUnderLimit(t *testing.T) {
	s := NewLocalStore(3, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := s.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := s.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLocalStore_Allow_IsolatesClients(t *testing.T) {
	s := NewLocalStore(1, 100)
	ctx := context.Background()

	d1, _ := s.Allow(ctx, "client-a")
	d2, _ := s.Allow(ctx, "client-b")
	assert.True(t, d1.Allowed)
	assert.True(t, d2.Allowed)
}

func TestLocalStore_Allow_EnforcesHourlyCapEvenUnderMinuteCap(t *testing.T) {
	s := NewLocalStore(100, 2)
	ctx := context.Background()

	s.Allow(ctx, "client-a")
	s.Allow(ctx, "client-a")
	d, err := s.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLocalStore_Stats_ReportsUsageWithoutConsuming(t *testing.T) {
	s := NewLocalStore(10, 100)
	ctx := context.Background()

	s.Allow(ctx, "client-a")
	s.Allow(ctx, "client-a")

	stats, err := s.Stats(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UsedMinute)
	assert.Equal(t, 10, stats.LimitMinute)

	// Stats must not itself count as a request.
	stats2, _ := s.Stats(ctx, "client-a")
	assert.Equal(t, stats.UsedMinute, stats2.UsedMinute)
}

func TestLocalStore_Reset_ClearsCounters(t *testing.T) {
	s := NewLocalStore(1, 100)
	ctx := context.Background()

	s.Allow(ctx, "client-a")
	d, _ := s.Allow(ctx, "client-a")
	require.False(t, d.Allowed)

	require.NoError(t, s.Reset(ctx, "client-a"))
	d2, _ := s.Allow(ctx, "client-a")
	assert.True(t, d2.Allowed)
}

func TestLocalStore_Allow_SlidesAcrossWindowBoundaryWithoutDoubleBurst(t *testing.T) {
	s := NewLocalStore(2, 100)
	ctx := context.Background()

	// Two requests land just before the window's nominal boundary, by
	// directly seeding the timestamp log as if they'd arrived 59s ago.
	w := s.windowsFor("client-a")
	seeded := time.Now().Add(-59 * time.Second)
	w.minute = []time.Time{seeded, seeded}
	w.hour = []time.Time{seeded, seeded}

	// A fixed-window implementation resets its counter at the 60s mark and
	// would admit two more requests here, yielding 4 admitted in under a
	// minute against a cap of 2. The sliding window must still see both
	// seeded timestamps and reject.
	d, err := s.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLimiter_NilStoreAllowsUnconditionally(t *testing.T) {
	l := NewLimiter(nil)
	d, err := l.IsAllowed(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
