package scheduler

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRejectsInvalidSpec(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	s := NewScheduler(logger)

	err := s.Schedule(context.Background(), "not a schedule", func(context.Context) {})
	assert.ErrorContains(t, err, "invalid backup schedule")
}

func TestScheduleAcceptsDescriptors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	s := NewScheduler(logger)

	require.NoError(t, s.Schedule(context.Background(), "@daily", func(context.Context) {}))
	require.NoError(t, s.Schedule(context.Background(), "30 2 * * *", func(context.Context) {}))
}

func TestRunStopsOnCancel(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := NewScheduler(logger)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Schedule(ctx, "@hourly", func(context.Context) {}))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !s.NextRun().IsZero() }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, "Backup scheduler stopped", hook.LastEntry().Message)
}
