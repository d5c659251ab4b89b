package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepReminders(context.Context) (map[string]int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return map[string]int{"book-1": 2}, nil
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("not a cron", &countingSweeper{})
	require.Error(t, err)
}

func TestSweepOnceToleratesErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	s, err := New("", sweeper)
	require.NoError(t, err)

	s.SweepOnce(context.Background())
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	s, err := New("@every 1s", sweeper)
	require.NoError(t, err)

	s.Start()
	s.Start()
	require.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
