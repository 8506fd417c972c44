package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	businessflow "github.com/amirphl/commission-engine/business_flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetrier struct {
	calls   atomic.Int32
	limit   atomic.Int32
	summary *businessflow.RetrySummary
	err     error
	block   chan struct{}
}

func (f *fakeRetrier) RetryOpen(ctx context.Context, limit int) (*businessflow.RetrySummary, error) {
	f.calls.Add(1)
	f.limit.Store(int32(limit))
	if f.block != nil {
		<-f.block
	}
	return f.summary, f.err
}

func TestBackfillScheduler_RunOnce(t *testing.T) {
	r := &fakeRetrier{summary: &businessflow.RetrySummary{Attempted: 3, Resolved: 2, Failed: 1}}
	s := NewBackfillScheduler(r, time.Minute, 7, "")

	summary := s.RunOnce(context.Background())
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Resolved)
	assert.Equal(t, int32(7), r.limit.Load())
}

func TestBackfillScheduler_RunOnceError(t *testing.T) {
	r := &fakeRetrier{err: errors.New("db down")}
	s := NewBackfillScheduler(r, time.Minute, 0, "")

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(50), r.limit.Load(), "default batch size")
}

func TestBackfillScheduler_SkipsOverlappingPass(t *testing.T) {
	r := &fakeRetrier{summary: &businessflow.RetrySummary{}, block: make(chan struct{})}
	s := NewBackfillScheduler(r, time.Minute, 1, "")

	go s.RunOnce(context.Background())
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.Nil(t, s.RunOnce(context.Background()))
	close(r.block)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestBackfillScheduler_StartStop(t *testing.T) {
	r := &fakeRetrier{summary: &businessflow.RetrySummary{Attempted: 1, Resolved: 1}}
	s := NewBackfillScheduler(r, 10*time.Millisecond, 5, filepath.Join(t.TempDir(), "scheduler.log"))

	stop := s.Start(context.Background())
	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	stop()

	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load(), "no passes after stop")
}
