package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUsage struct {
	calls atomic.Int32
	err   error
}

func (f *fakeUsage) ResetUsagePeriod(context.Context, time.Time) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

type fakePoller struct {
	calls atomic.Int32
}

func (f *fakePoller) PollConfirmations(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("job ran without a deadline")
	}
	return 2, nil
}

func TestDefaultSchedule(t *testing.T) {
	s, err := Default(&fakeUsage{}, &fakePoller{}, zap.NewNop())
	require.NoError(t, err)

	from := time.Date(2026, time.March, 17, 13, 4, 0, 0, time.UTC)
	next, err := s.Next(UsageResetName, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), next)

	next, err = s.Next(ConfirmationsName, from)
	require.NoError(t, err)
	require.Equal(t, from.Add(10*time.Minute), next)

	_, err = s.Next("nope", from)
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNow(t *testing.T) {
	usage := &fakeUsage{}
	poller := &fakePoller{}
	s, err := Default(usage, poller, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.RunNow(ctx, UsageResetName))
	require.NoError(t, s.RunNow(ctx, ConfirmationsName))
	require.Equal(t, int32(1), usage.calls.Load())
	require.Equal(t, int32(1), poller.calls.Load())

	usage.err = errors.New("db down")
	require.ErrorContains(t, s.RunNow(ctx, UsageResetName), "db down")
	require.ErrorIs(t, s.RunNow(ctx, "vacuum"), ErrUnknownJob)
}

func TestAddRejectsBadJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	job := Job{Name: "tick", Spec: "@every 1h", Run: func(context.Context) error { return nil }}
	require.NoError(t, s.Add(job))
	require.Error(t, s.Add(job))
	require.Error(t, s.Add(Job{Name: "broken", Spec: "every tuesday", Run: job.Run}))
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Add(Job{Name: "fast", Spec: "@every 1s", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
