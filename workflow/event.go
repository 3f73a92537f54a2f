package workflow

import (
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is the token that travels through the graph. It is owned by one
// goroutine at a time; branching to several outputs forks a copy per
// extra branch.
type Event struct {
	id      string
	origin  Node
	graph   GraphHandle
	vars    map[string]Value
	cursor  string
	hops    int
	created time.Time
	paths   *pathCount
}

// pathCount is shared by an event and all of its forks.
type pathCount struct {
	open   atomic.Int32 // 尚未结束的分支，含已挂起的
	parked atomic.Int32 // 挂在 Wait 上等待续跑的分支
}

func newEvent(g GraphHandle, origin Node) *Event {
	ev := &Event{
		id:      uuid.NewString(),
		origin:  origin,
		graph:   g,
		vars:    make(map[string]Value),
		created: time.Now(),
		paths:   &pathCount{},
	}
	ev.paths.open.Store(1)
	if origin != nil {
		ev.cursor = origin.ID()
	}
	return ev
}

// NewEvent creates a free-standing event, mainly for exercising a single
// node outside a running graph.
func NewEvent(g GraphHandle, origin Node) *Event {
	return newEvent(g, origin)
}

func (e *Event) ID() string           { return e.id }
func (e *Event) Origin() Node         { return e.origin }
func (e *Event) Graph() GraphHandle   { return e.graph }
func (e *Event) Cursor() string       { return e.cursor }
func (e *Event) CreatedAt() time.Time { return e.created }

// Get reads a variable.
func (e *Event) Get(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Set writes a variable, replacing any previous value.
func (e *Event) Set(name string, v Value) {
	e.vars[name] = v
}

// Variables returns a snapshot of the variable map.
func (e *Event) Variables() map[string]Value {
	return maps.Clone(e.vars)
}

// Lookup exposes variables as plain Go values, for expression evaluation
// and message templates.
func (e *Event) Lookup(name string) (any, bool) {
	v, ok := e.vars[name]
	if !ok {
		return nil, false
	}
	return v.Interface(), true
}

func (e *Event) fork() *Event {
	cp := *e
	cp.vars = maps.Clone(e.vars)
	return &cp
}
