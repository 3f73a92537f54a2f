package workflow

import (
	"container/list"
	"sync"
	"time"
)

// TraceStatus represents the status of an event trace.
type TraceStatus string

const (
	// TraceRunning indicates the event is still propagating
	TraceRunning TraceStatus = "running"
	// TraceDeferred indicates the event is parked on a timed continuation
	TraceDeferred TraceStatus = "deferred"
	// TraceCompleted indicates every branch of the event reached its end
	TraceCompleted TraceStatus = "completed"
	// TraceFailed indicates a path of the event was aborted
	TraceFailed TraceStatus = "failed"
)

// NodeStep records the execution of a single node for one event.
type NodeStep struct {
	NodeID   string        `json:"node_id"`
	NodeType string        `json:"node_type"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration_ns"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// EventTrace records the path one event took through a graph.
type EventTrace struct {
	EventID      string      `json:"event_id"`
	GraphVersion int64       `json:"graph_version"`
	Origin       string      `json:"origin"`
	OriginType   string      `json:"origin_type"`
	StartTime    time.Time   `json:"start_time"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Status       TraceStatus `json:"status"`
	Steps        []NodeStep  `json:"steps"`
	Error        string      `json:"error,omitempty"`
}

// HistoryStore keeps the most recent event traces. It is attached to the
// engine as an observer.
type HistoryStore struct {
	mu       sync.RWMutex
	capacity int
	traces   map[string]*list.Element
	order    *list.List // front = newest
}

// NewHistoryStore creates a store bounded to capacity traces.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &HistoryStore{
		capacity: capacity,
		traces:   make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Notify implements Observer.
func (s *HistoryStore) Notify(n Notification) {
	if n.EventID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var tr *EventTrace
	if el, ok := s.traces[n.EventID]; ok {
		tr = el.Value.(*EventTrace)
		s.order.MoveToFront(el)
	} else {
		tr = &EventTrace{
			EventID:      n.EventID,
			GraphVersion: n.GraphVersion,
			Origin:       n.NodeID,
			OriginType:   n.NodeType,
			StartTime:    n.Timestamp,
			Status:       TraceRunning,
			Steps:        make([]NodeStep, 0, 4),
		}
		s.traces[n.EventID] = s.order.PushFront(tr)
		s.evict()
	}
	tr.UpdatedAt = n.Timestamp

	switch n.Kind {
	case NotifyNodeExecuted:
		tr.Steps = append(tr.Steps, NodeStep{
			NodeID:   n.NodeID,
			NodeType: n.NodeType,
			At:       n.Timestamp,
			Duration: n.Duration,
			Result:   n.Result,
		})
		if tr.Status != TraceFailed {
			tr.Status = TraceRunning
		}
	case NotifyEventDeferred, NotifyEventCompleted:
		if tr.Status != TraceFailed {
			tr.Status = pathStatus(n)
		}
	case NotifyEventFailed:
		tr.Status = TraceFailed
		tr.Error = n.Error
		tr.Steps = append(tr.Steps, NodeStep{
			NodeID:   n.NodeID,
			NodeType: n.NodeType,
			At:       n.Timestamp,
			Error:    n.Error,
		})
	}
}

// pathStatus 根据分支计数判断事件整体状态：全部结束才算 completed
func pathStatus(n Notification) TraceStatus {
	switch {
	case n.OpenPaths <= 0:
		return TraceCompleted
	case n.ParkedPaths >= n.OpenPaths:
		return TraceDeferred
	default:
		return TraceRunning
	}
}

func (s *HistoryStore) evict() {
	for s.order.Len() > s.capacity {
		el := s.order.Back()
		tr := el.Value.(*EventTrace)
		delete(s.traces, tr.EventID)
		s.order.Remove(el)
	}
}

// Get retrieves a trace by event ID.
func (s *HistoryStore) Get(eventID string) (EventTrace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.traces[eventID]
	if !ok {
		return EventTrace{}, false
	}
	return copyTrace(el.Value.(*EventTrace)), true
}

// List returns up to limit traces, newest first. limit <= 0 means all.
func (s *HistoryStore) List(limit int) []EventTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > s.order.Len() {
		limit = s.order.Len()
	}
	out := make([]EventTrace, 0, limit)
	for el := s.order.Front(); el != nil && len(out) < limit; el = el.Next() {
		out = append(out, copyTrace(el.Value.(*EventTrace)))
	}
	return out
}

// ListByStatus returns traces with a specific status, newest first.
func (s *HistoryStore) ListByStatus(status TraceStatus) []EventTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EventTrace
	for el := s.order.Front(); el != nil; el = el.Next() {
		if tr := el.Value.(*EventTrace); tr.Status == status {
			out = append(out, copyTrace(tr))
		}
	}
	return out
}

// Len returns the number of stored traces.
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

func copyTrace(tr *EventTrace) EventTrace {
	cp := *tr
	cp.Steps = append([]NodeStep(nil), tr.Steps...)
	return cp
}
