package ratelimit

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// admissionTask is a unit of store work submitted to the admission pool.
type admissionTask func() error

// pool is a bounded goroutine pool used to fan admission checks out
// against the shared state store, per the concurrency model's "worker
// pool for rate-limiter admission".
type pool struct {
	logger *zap.Logger
	config poolConfig

	taskQueue chan admissionTask
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
}

type poolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func defaultPoolConfig(name string) poolConfig {
	return poolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU() * 2,
		QueueSize:       10000,
		TaskTimeout:     2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func newPool(logger *zap.Logger, config poolConfig) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan admissionTask, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *pool) start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting admission pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
	)
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *pool) runWorker(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", id))
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.execute(logger, task)
		}
	}
}

func (p *pool) execute(logger *zap.Logger, task admissionTask) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("admission task panicked", zap.Any("panic", r))
				done <- errPanic
			}
		}()
		done <- task()
	}()

	select {
	case err := <-done:
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	case <-ctx.Done():
		p.timedOut.Add(1)
		logger.Warn("admission task timed out", zap.Duration("timeout", p.config.TaskTimeout))
	}
}

// submit enqueues a task, returning errQueueFull if the bounded queue is
// saturated (callers fall back to direct execution — see submitWait).
func (p *pool) submit(task admissionTask) error {
	if !p.running.Load() {
		return errPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return errQueueFull
	}
}

// submitWait submits a task and blocks for its result, used by the
// synchronous Check() path which needs the outcome inline.
func (p *pool) submitWait(task admissionTask) error {
	if !p.running.Load() {
		return task()
	}
	done := make(chan error, 1)
	if err := p.submit(func() error {
		err := task()
		done <- err
		return err
	}); err != nil {
		return task()
	}
	return <-done
}

func (p *pool) stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return errShutdownTimeout
	}
}

type poolError string

func (e poolError) Error() string { return string(e) }

const (
	errPoolStopped     poolError = "admission pool is stopped"
	errQueueFull       poolError = "admission queue is full"
	errShutdownTimeout poolError = "admission pool shutdown timed out"
	errPanic           poolError = "admission task panicked"
)
