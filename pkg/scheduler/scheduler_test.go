package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notifly-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(logger.NewNop(), time.Second)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "tick", jobs[0].Name)
	assert.Equal(t, "@every 1s", jobs[0].Spec)
	assert.False(t, jobs[0].Next.IsZero())
}

func TestScheduler_AddRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := New(logger.NewNop(), 0)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("a", "*/5 * * * *", noop))
	assert.Error(t, s.Add("a", "@hourly", noop))
	assert.Error(t, s.Add("b", "not a schedule", noop))
	assert.Len(t, s.Jobs(), 1)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(logger.NewNop(), 50*time.Millisecond)
	boom := errors.New("boom")

	require.NoError(t, s.Add("fails", "@daily", func(context.Context) error { return boom }))
	require.NoError(t, s.Add("deadline", "@daily", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	assert.ErrorIs(t, s.RunNow("fails"), boom)
	assert.ErrorIs(t, s.RunNow("deadline"), context.DeadlineExceeded)
	assert.ErrorIs(t, s.RunNow("missing"), ErrUnknownJob)
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := New(logger.NewNop(), time.Minute)
	started := make(chan struct{})
	require.NoError(t, s.Add("slow", "@daily", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- s.RunNow("slow") }()
	<-started

	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(logger.NewNop(), 0)
	assert.NoError(t, s.Stop(context.Background()))
}
