package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessorQueue runs jobs on a fixed pool of workers. Jobs carry no
// deadline of their own; the external calls inside a job bound themselves.
type ProcessorQueue struct {
	runner  JobRunner
	logger  *slog.Logger
	workers int

	ch     chan Job
	wg     sync.WaitGroup
	once   sync.Once
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func NewProcessorQueue(runner JobRunner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.base, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker_started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("queue.worker_stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	jobID := job.Request.JobID
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job_panicked", "worker_id", workerID, "job_id", jobID, "panic", r)
		}
	}()

	waited := time.Duration(0)
	if !job.SubmittedAt.IsZero() {
		waited = time.Since(job.SubmittedAt)
	}
	start := time.Now()
	res, err := q.runner.Run(q.base, job.Request)
	if err != nil {
		q.logger.Error("queue.job_failed", "worker_id", workerID, "job_id", jobID, "error", err)
		return
	}
	q.logger.Info("queue.job_done",
		"worker_id", workerID,
		"job_id", jobID,
		"grade", res.Grade,
		"queued_ms", waited.Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue hands a job to the pool, blocking while the buffer is full.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue_rejected", "job_id", job.Request.JobID)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queue.enqueued", "job_id", job.Request.JobID)
		return nil
	default:
	}

	q.logger.Warn("queue.full", "job_id", job.Request.JobID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to finish. If ctx ends
// first, running jobs are cancelled; their checkpoints keep the last stage.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("queue.shutdown_interrupted")
		<-done
	case <-done:
		q.cancel()
		q.logger.Info("queue.drained")
	}
}
