// Package worker consumes queued simulation jobs and runs them through the
// pipeline.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/datavista/launchsim/internal/domain"
)

// Pool drains the job queue with a fixed number of consumers. The baseline
// deployment uses one consumer: the pipeline is single-flight, one
// submission's external processes run at a time.
type Pool struct {
	concurrency int
	queue       domain.JobQueue
	pipeline    domain.Pipeline
	wg          sync.WaitGroup
}

// NewPool returns a pool of the given concurrency. Values below one are
// clamped to the single-flight baseline.
func NewPool(concurrency int, queue domain.JobQueue, pipeline domain.Pipeline) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		concurrency: concurrency,
		queue:       queue,
		pipeline:    pipeline,
	}
}

// Run subscribes to the queue and processes jobs until ctx is cancelled.
// It blocks until all consumers have drained.
func (p *Pool) Run(ctx context.Context) error {
	jobs, err := p.queue.Subscribe(ctx)
	if err != nil {
		return err
	}

	slog.Info("Starting job consumers", "concurrency", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.consume(ctx, i, jobs)
	}

	p.wg.Wait()
	slog.Info("Job consumers stopped")
	return nil
}

func (p *Pool) consume(ctx context.Context, id int, jobs <-chan domain.Job) {
	defer p.wg.Done()
	slog.Info("Consumer started", "consumerID", id)

	for job := range jobs {
		slog.Info("Processing job", "consumerID", id, "jobID", job.ID, "user", job.User)

		result := p.pipeline.Run(ctx, job)
		result.JobID = job.ID

		if err := p.queue.Broadcast(ctx, result); err != nil {
			slog.Error("Failed to broadcast result", "jobID", job.ID, "error", err)
		}
		if err := p.queue.Acknowledge(ctx, job.RawID); err != nil {
			slog.Error("Failed to acknowledge job", "jobID", job.ID, "error", err)
		}
	}

	slog.Info("Consumer stopped", "consumerID", id)
}
