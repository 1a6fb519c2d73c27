package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrQueueClosed = errors.New("dispatch queue closed")
)

// Config controls queue buffering and concurrency.
type Config struct {
	Workers int
	Buffer  int
}

// Queue is an in-process worker pool. Enqueue never blocks; workers run
// each job through a Runner on their own goroutines.
type Queue struct {
	runner  *Runner
	metrics *metrics.Metrics
	workers int

	ch     chan domain.DispatchJob
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	closeOnce sync.Once
}

func NewQueue(runner *Runner, cfg Config, m *metrics.Metrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		runner:  runner,
		metrics: m,
		workers: cfg.Workers,
		ch:      make(chan domain.DispatchJob, cfg.Buffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work()
		}
	})
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.ch:
			q.run(job)
		case <-q.done:
			for {
				select {
				case job := <-q.ch:
					q.run(job)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(job domain.DispatchJob) {
	q.metrics.SetQueueDepth(len(q.ch))
	q.runner.Run(q.ctx, job)
}

// Enqueue hands job to the workers without waiting for delivery.
func (q *Queue) Enqueue(_ context.Context, job domain.DispatchJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("%w: %w", domain.ErrDispatchFailure, ErrQueueClosed)
	}
	select {
	case q.ch <- job:
		q.metrics.SetQueueDepth(len(q.ch))
		return nil
	default:
		return fmt.Errorf("%w: %w", domain.ErrDispatchFailure, ErrQueueFull)
	}
}

// Close stops accepting jobs and waits for buffered jobs to finish. If ctx
// expires first, in-flight retries are cancelled and dead-lettered.
func (q *Queue) Close(ctx context.Context) error {
	var err error
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)

		finished := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			q.cancel()
			<-finished
			err = ctx.Err()
		}
		q.cancel()
	})
	return err
}
