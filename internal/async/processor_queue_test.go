package async_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/async"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
)

type recordingRunner struct {
	mu      sync.Mutex
	seen    []string
	active  int32
	maxSeen int32
	delay   time.Duration
	block   chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, req pipeline.Request) (entity.FinalResult, error) {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		cur := atomic.LoadInt32(&r.maxSeen)
		if n <= cur || atomic.CompareAndSwapInt32(&r.maxSeen, cur, n) {
			break
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return entity.FinalResult{}, ctx.Err()
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.seen = append(r.seen, req.JobID)
	r.mu.Unlock()
	return entity.FinalResult{StudentID: req.StudentID}, nil
}

func TestProcessorQueue_RunsEveryJob(t *testing.T) {
	r := &recordingRunner{delay: 5 * time.Millisecond}
	q := async.NewProcessorQueue(r, nil, async.WithWorkers(3), async.WithQueueSize(2))

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, q.Enqueue(context.Background(), async.Job{Request: pipeline.Request{JobID: id}}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f"}, r.seen)
	assert.LessOrEqual(t, atomic.LoadInt32(&r.maxSeen), int32(3))
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := async.NewProcessorQueue(&recordingRunner{}, nil, async.WithWorkers(1))
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), async.Job{Request: pipeline.Request{JobID: "late"}})
	assert.ErrorIs(t, err, async.ErrClosed)

	// second shutdown is a no-op
	q.Shutdown(context.Background())
}

func TestProcessorQueue_ShutdownTimeoutCancelsRunningJobs(t *testing.T) {
	r := &recordingRunner{block: make(chan struct{})}
	q := async.NewProcessorQueue(r, nil, async.WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), async.Job{Request: pipeline.Request{JobID: "slow"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		q.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return after its context expired")
	}
	assert.Empty(t, r.seen)
}

func TestProcessorQueue_EnqueueHonorsContextWhenFull(t *testing.T) {
	r := &recordingRunner{block: make(chan struct{})}
	q := async.NewProcessorQueue(r, nil, async.WithWorkers(1), async.WithQueueSize(1))
	defer func() {
		close(r.block)
		q.Shutdown(context.Background())
	}()

	require.NoError(t, q.Enqueue(context.Background(), async.Job{Request: pipeline.Request{JobID: "running"}}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&r.active) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), async.Job{Request: pipeline.Request{JobID: "buffered"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, async.Job{Request: pipeline.Request{JobID: "overflow"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
