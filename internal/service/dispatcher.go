package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// ErrQueueFull is returned when the dispatcher cannot accept more work.
var ErrQueueFull = errors.New("deployment queue is full")

// Dispatcher runs deployments on a fixed worker pool. Each enqueued request
// becomes one orchestration wrapped in the retry policy: retryable outcomes
// (sync failures, monitor timeouts) get a fresh attempt with exponential
// backoff; validation failures, lock conflicts and spent build failures do
// not.
type Dispatcher struct {
	orchestrator *Orchestrator
	queue        chan DeployRequest
	workers      int
	maxRetries   uint64
	metrics      *Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

func NewDispatcher(orchestrator *Orchestrator, workers, queueSize int, maxRetries uint64, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		orchestrator: orchestrator,
		queue:        make(chan DeployRequest, queueSize),
		workers:      workers,
		maxRetries:   maxRetries,
		metrics:      metrics,
	}
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop cancels in-flight work and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		close(d.queue)
	})
	d.wg.Wait()
}

// Enqueue hands a request to the pool without blocking the caller.
func (d *Dispatcher) Enqueue(req DeployRequest) error {
	select {
	case d.queue <- req:
		if d.metrics != nil {
			d.metrics.SetQueueDepth(len(d.queue))
		}
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.queue:
			if !ok {
				return
			}
			if d.metrics != nil {
				d.metrics.SetQueueDepth(len(d.queue))
			}
			d.process(ctx, req)
		}
	}
}

// process runs one request through the retry policy. Every retry is a brand
// new attempt row; terminal records of prior attempts stay untouched.
func (d *Dispatcher) process(ctx context.Context, req DeployRequest) {
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(2*time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		deployErr := d.orchestrator.Deploy(ctx, req)
		if deployErr == nil {
			return nil
		}
		if apperrors.IsRetryable(deployErr) {
			logger.WithContext(ctx).Warnf("deployment for app %s failed, will retry: %v", req.AppID, deployErr)
			return retry.RetryableError(deployErr)
		}
		return deployErr
	})
	if err != nil {
		logger.WithContext(ctx).Errorf("deployment for app %s gave up: %v", req.AppID, err)
	}
}
