package workflow

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/internal/pool"
)

// ScheduleKind distinguishes the three scheduling policies.
type ScheduleKind string

const (
	ScheduleFixedRate  ScheduleKind = "fixed_rate"
	ScheduleFixedDelay ScheduleKind = "fixed_delay"
	ScheduleOnce       ScheduleKind = "once"
)

// 线程池满时一次性任务的重试间隔
const rejectedRetryDelay = 10 * time.Millisecond

// Handle cancels one registration.
type Handle struct {
	name      string
	kind      ScheduleKind
	cancelled atomic.Bool
	entry     *scheduleEntry
	s         *Scheduler
}

// Cancel stops future runs. A run already in progress completes.
func (h *Handle) Cancel() {
	if h == nil || h.cancelled.Swap(true) {
		return
	}
	h.s.remove(h.entry)
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Name returns the task name given at registration.
func (h *Handle) Name() string { return h.name }

type scheduleEntry struct {
	handle   *Handle
	task     func()
	at       time.Time
	interval time.Duration
	index    int
}

type entryHeap []*scheduleEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*scheduleEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// SchedulerConfig configures the engine scheduler.
type SchedulerConfig struct {
	Pool pool.Config
}

// Scheduler runs timed tasks off the host's main loop. A single timer
// goroutine orders deadlines; tasks run on a dedicated worker pool.
type Scheduler struct {
	mu     sync.Mutex
	queue  entryHeap
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	pool    *pool.WorkerPool
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewScheduler starts a scheduler.
func NewScheduler(cfg SchedulerConfig, logger *zap.Logger, metrics MetricsRecorder) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	s := &Scheduler{
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("component", "scheduler")),
		metrics: metrics,
	}
	poolCfg := cfg.Pool
	poolCfg.PanicHandler = func(task string, r any) {
		s.logger.Error("scheduler worker panicked", zap.String("task", task), zap.Any("panic", r))
	}
	s.pool = pool.New(poolCfg, s.logger)
	go s.loop()
	return s
}

// ScheduleAtFixedRate runs task every period, measured from the previous
// deadline. Runs of the same registration never overlap; a late run starts
// immediately and missed ticks beyond one are skipped.
func (s *Scheduler) ScheduleAtFixedRate(name string, task func(), initialDelay, period time.Duration) (*Handle, error) {
	if period <= 0 {
		return nil, &SchedulerError{Task: name, Err: fmt.Errorf("period must be positive, got %s", period)}
	}
	return s.add(name, ScheduleFixedRate, task, initialDelay, period)
}

// ScheduleWithFixedDelay runs task repeatedly, waiting delay after each
// run completes.
func (s *Scheduler) ScheduleWithFixedDelay(name string, task func(), initialDelay, delay time.Duration) (*Handle, error) {
	if delay <= 0 {
		return nil, &SchedulerError{Task: name, Err: fmt.Errorf("delay must be positive, got %s", delay)}
	}
	return s.add(name, ScheduleFixedDelay, task, initialDelay, delay)
}

// ScheduleOnce runs task once after delay.
func (s *Scheduler) ScheduleOnce(name string, task func(), delay time.Duration) (*Handle, error) {
	return s.add(name, ScheduleOnce, task, delay, 0)
}

func (s *Scheduler) add(name string, kind ScheduleKind, task func(), initialDelay, interval time.Duration) (*Handle, error) {
	if task == nil {
		return nil, &SchedulerError{Task: name, Err: errors.New("nil task")}
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	h := &Handle{name: name, kind: kind, s: s}
	e := &scheduleEntry{handle: h, task: task, at: time.Now().Add(initialDelay), interval: interval, index: -1}
	h.entry = e

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &SchedulerError{Task: name, Err: ErrSchedulerClosed}
	}
	heap.Push(&s.queue, e)
	s.mu.Unlock()
	s.signal()
	return h, nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) remove(e *scheduleEntry) {
	s.mu.Lock()
	if e.index >= 0 && e.index < len(s.queue) && s.queue[e.index] == e {
		heap.Remove(&s.queue, e.index)
	}
	s.mu.Unlock()
}

// Pending returns the number of armed registrations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) loop() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		now := time.Now()
		var due []*scheduleEntry
		for len(s.queue) > 0 && !s.queue[0].at.After(now) {
			due = append(due, heap.Pop(&s.queue).(*scheduleEntry))
		}
		wait := time.Duration(-1)
		if len(s.queue) > 0 {
			wait = s.queue[0].at.Sub(now)
		}
		s.mu.Unlock()

		for _, e := range due {
			s.dispatch(e)
		}
		if len(due) > 0 {
			// dispatch 可能重新入队，重新计算最近的截止时间
			continue
		}
		if wait >= 0 {
			timer.Reset(wait)
		}

		select {
		case <-s.stop:
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) dispatch(e *scheduleEntry) {
	h := e.handle
	if h.Cancelled() {
		return
	}
	err := s.pool.Submit(pool.Task{Name: h.name, Run: func() { s.run(e) }})
	if err == nil {
		return
	}

	s.metrics.RecordSchedulerTask(string(h.kind), "rejected")
	s.logger.Warn("scheduler task rejected",
		zap.String("task", h.name),
		zap.String("kind", string(h.kind)),
		zap.Error(&SchedulerError{Task: h.name, Err: err}))
	if errors.Is(err, pool.ErrPoolClosed) {
		return
	}
	if h.kind == ScheduleOnce {
		e.at = time.Now().Add(rejectedRetryDelay)
		s.requeue(e)
		return
	}
	s.rearm(e, time.Now())
}

func (s *Scheduler) run(e *scheduleEntry) {
	h := e.handle
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSchedulerTask(string(h.kind), "panic")
			s.logger.Error("scheduled task panicked",
				zap.String("task", h.name),
				zap.Error(&SchedulerError{Task: h.name, Err: fmt.Errorf("panic: %v", r)}))
		}
		s.rearm(e, time.Now())
	}()
	if h.Cancelled() {
		return
	}
	e.task()
	s.metrics.RecordSchedulerTask(string(h.kind), "ok")
}

func (s *Scheduler) rearm(e *scheduleEntry, finished time.Time) {
	switch e.handle.kind {
	case ScheduleFixedRate:
		next := e.at.Add(e.interval)
		if next.Before(finished.Add(-e.interval)) {
			next = finished
		}
		e.at = next
	case ScheduleFixedDelay:
		e.at = finished.Add(e.interval)
	default:
		return
	}
	s.requeue(e)
}

func (s *Scheduler) requeue(e *scheduleEntry) {
	if e.handle.Cancelled() {
		return
	}
	s.mu.Lock()
	if s.closed || e.handle.Cancelled() {
		s.mu.Unlock()
		return
	}
	heap.Push(&s.queue, e)
	s.mu.Unlock()
	s.signal()
}

// Stats exposes the worker pool statistics.
func (s *Scheduler) Stats() pool.Stats {
	return s.pool.Stats()
}

// Close stops the timer goroutine and waits for running tasks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	s.pool.Close()
}
