package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-memory-api/internal/domain/entity"
)

func TestGuardAcquireIsExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	g := NewGuard()

	release, ok, err := g.Acquire(ctx, "chapter-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.Acquire(ctx, "chapter-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = g.Acquire(ctx, "chapter-2", time.Minute)
	assert.True(t, ok)

	release()
	release()
	_, ok, _ = g.Acquire(ctx, "chapter-1", time.Minute)
	assert.True(t, ok)
}

func TestGuardExpiredHoldIsReclaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewGuard()
	g.now = func() time.Time { return now }

	_, ok, _ := g.Acquire(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = g.Acquire(ctx, "k", time.Second)
	assert.True(t, ok)
}

func TestReportCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewReportCache()
	c.now = func() time.Time { return now }

	report := entity.NewReviewReport("book", entity.ReviewModeSingle, now)
	require.NoError(t, c.PutReport(ctx, "ch", report, time.Minute))

	got, err := c.GetReport(ctx, "ch")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "book", got.BookID)

	now = now.Add(2 * time.Minute)
	got, err = c.GetReport(ctx, "ch")
	require.NoError(t, err)
	assert.Nil(t, got)
}
