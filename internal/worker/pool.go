// Package worker runs the claim/process loops and the periodic status sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/retry"
)

type JobProcessor interface {
	Process(ctx context.Context, lease *queue.Lease) error
}

type Pool struct {
	Queue        *queue.Queue
	Processor    JobProcessor
	Concurrency  int
	PollInterval time.Duration
	// Notifications, when set, wakes idle loops as soon as a job is enqueued.
	Notifications <-chan pubsub.Message
	// ID prefixes each loop's lease holder name.
	ID     string
	Logger *logger.CanonicalLogger
}

// Run blocks until ctx is cancelled. A job already being processed when ctx
// ends is allowed to finish; its lease would otherwise have to expire first.
func (p *Pool) Run(ctx context.Context) error {
	if p.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", p.Concurrency)
	}

	g, ctx := errgroup.WithContext(ctx)
	wake := make(chan struct{}, p.Concurrency)

	if p.Notifications != nil {
		g.Go(func() error {
			p.fanOut(ctx, wake)
			return nil
		})
	}
	for i := 0; i < p.Concurrency; i++ {
		holder := fmt.Sprintf("%s-%d", p.ID, i)
		g.Go(func() error {
			p.loop(ctx, holder, wake)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) fanOut(ctx context.Context, wake chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-p.Notifications:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func (p *Pool) loop(ctx context.Context, holder string, wake <-chan struct{}) {
	log := p.Logger.WithWorkerID(holder)
	log.Info("worker loop started")
	defer log.Info("worker loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		lease, err := p.Queue.Claim(ctx, holder)
		if err == nil {
			p.runJob(ctx, log, lease)
			continue
		}
		if !errors.Is(err, queue.ErrNoJob) && ctx.Err() == nil {
			log.Error("failed to claim job", logger.Err(err))
		}

		timer := time.NewTimer(retry.Jitter(p.PollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// runJob processes one lease, renewing it at half its lifetime until done.
func (p *Pool) runJob(ctx context.Context, log *logger.CanonicalLogger, lease *queue.Lease) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.keepAlive(jobCtx, cancel, log, lease)
	}()

	start := time.Now()
	err := p.Processor.Process(jobCtx, lease)
	cancel()
	<-done

	jlog := log.WithJobID(lease.JobID)
	switch {
	case err == nil:
		jlog.Info("heartbeat job processed",
			logger.String(logger.FieldServerID, lease.ServerID),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	case errors.Is(err, queue.ErrLeaseLost):
		jlog.Warn("lease lost before job completed",
			logger.String(logger.FieldServerID, lease.ServerID),
		)
	default:
		jlog.Warn("heartbeat job failed",
			logger.String(logger.FieldServerID, lease.ServerID),
			logger.Int(logger.FieldAttempts, lease.Attempts+1),
			logger.Err(err),
		)
	}
}

func (p *Pool) keepAlive(ctx context.Context, cancel context.CancelFunc, log *logger.CanonicalLogger, lease *queue.Lease) {
	interval := p.Queue.LeaseTimeout / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := p.Queue.Renew(ctx, lease)
		if err == nil || ctx.Err() != nil {
			continue
		}
		log.Warn("failed to renew lease", logger.String(logger.FieldJobID, lease.JobID), logger.Err(err))
		if errors.Is(err, queue.ErrLeaseLost) {
			cancel()
			return
		}
	}
}
