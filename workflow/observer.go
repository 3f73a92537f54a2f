package workflow

import (
	"context"
	"sync"
	"time"
)

// NotificationKind enumerates observable transitions.
type NotificationKind string

const (
	NotifyGraphLoaded    NotificationKind = "graph_loaded"
	NotifyEventStarted   NotificationKind = "event_started"
	NotifyNodeExecuted   NotificationKind = "node_executed"
	NotifyEventDeferred  NotificationKind = "event_deferred"
	NotifyEventCompleted NotificationKind = "event_completed"
	NotifyEventFailed    NotificationKind = "event_failed"
)

// Notification is the serializable projection of an event transition.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	GraphVersion int64            `json:"graph_version"`
	EventID      string           `json:"event_id,omitempty"`
	NodeID       string           `json:"node_id,omitempty"`
	NodeType     string           `json:"node_type,omitempty"`
	Variables    map[string]Value `json:"variables,omitempty"`
	Result       string           `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	Duration     time.Duration    `json:"duration_ns,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`

	// OpenPaths 是发布时该事件尚未结束的分支数，ParkedPaths 是其中挂起的部分
	OpenPaths   int `json:"open_paths"`
	ParkedPaths int `json:"parked_paths"`
}

// Observer receives notifications. Implementations must not block.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

// ObserverSet fans notifications out to attached observers.
type ObserverSet struct {
	mu        sync.RWMutex
	next      uint64
	observers map[uint64]Observer
	metrics   MetricsRecorder
}

// NewObserverSet creates an empty set.
func NewObserverSet(metrics MetricsRecorder) *ObserverSet {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ObserverSet{observers: make(map[uint64]Observer), metrics: metrics}
}

// Add attaches an observer and returns its detach function.
func (s *ObserverSet) Add(o Observer) (remove func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.observers[id] = o
	n := len(s.observers)
	s.mu.Unlock()
	s.metrics.SetObservers(n)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			n := len(s.observers)
			s.mu.Unlock()
			s.metrics.SetObservers(n)
		})
	}
}

// Len returns the number of attached observers.
func (s *ObserverSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// Publish delivers n to every observer.
func (s *ObserverSet) Publish(n Notification) {
	s.mu.RLock()
	targets := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		targets = append(targets, o)
	}
	s.mu.RUnlock()
	for _, o := range targets {
		o.Notify(n)
	}
}

// Subscribe returns a channel of notifications that stays attached until
// ctx is done. Notifications are dropped when the buffer is full.
func (s *ObserverSet) Subscribe(ctx context.Context, buffer int) <-chan Notification {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &chanObserver{ch: make(chan Notification, buffer), metrics: s.metrics}
	remove := s.Add(sub)
	go func() {
		<-ctx.Done()
		remove()
		sub.close()
	}()
	return sub.ch
}

type chanObserver struct {
	mu      sync.Mutex
	ch      chan Notification
	closed  bool
	metrics MetricsRecorder
}

func (c *chanObserver) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- n:
	default:
		c.metrics.RecordObserverDrop()
	}
}

func (c *chanObserver) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
