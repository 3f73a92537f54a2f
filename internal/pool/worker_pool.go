package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task is a named unit of work. The name is only used for diagnostics.
type Task struct {
	Name string
	Run  func()
}

// PanicHandler receives the recovered value of a panicking task.
type PanicHandler func(task string, recovered any)

// Config configures the pool.
type Config struct {
	MaxWorkers   int           `json:"max_workers" yaml:"max_workers"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	PanicHandler PanicHandler  `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  8,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
}

// WorkerPool runs tasks on a bounded set of lazily spawned goroutines.
// Workers above one exit after IdleTimeout without work.
type WorkerPool struct {
	maxWorkers  int
	idleTimeout time.Duration
	onPanic     PanicHandler
	logger      *zap.Logger

	// mu 保护 queue 的关闭，避免向已关闭 channel 发送
	mu     sync.RWMutex
	queue  chan Task
	closed bool
	wg     sync.WaitGroup

	workerCount atomic.Int32
	activeCount atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
}

// New creates a worker pool.
func New(cfg Config, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	return &WorkerPool{
		maxWorkers:  cfg.MaxWorkers,
		idleTimeout: cfg.IdleTimeout,
		onPanic:     cfg.PanicHandler,
		logger:      logger.With(zap.String("component", "worker_pool")),
		queue:       make(chan Task, cfg.QueueSize),
	}
}

// Submit enqueues a task without blocking.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	select {
	case p.queue <- task:
		p.ensureWorker()
		return nil
	default:
		p.rejected.Add(1)
		return fmt.Errorf("%w: task %q", ErrPoolFull, task.Name)
	}
}

func (p *WorkerPool) ensureWorker() {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return
		}
		// 只有当排队任务多于空闲 worker 时才扩容
		if idle := current - p.activeCount.Load(); idle > 0 && int(idle) >= len(p.queue) {
			return
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.activeCount.Add(1)
			p.run(task)
			p.activeCount.Add(-1)
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			if p.workerCount.Load() > 1 {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.onPanic != nil {
				p.onPanic(task.Name, r)
				return
			}
			p.logger.Error("task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r))
			return
		}
		p.completed.Add(1)
	}()
	task.Run()
}

// Close stops accepting tasks, drains the queue and waits for workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
}
