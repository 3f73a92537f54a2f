package workflow

import (
	"context"
	"sync/atomic"
)

// State is the lifecycle state of a node instance.
type State int32

const (
	StateUnbound State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return "unbound"
	}
}

// Node is one vertex of a workflow graph.
//
// Init is called once per graph (re)load; emitters subscribe there using
// the graph handle. Execute processes an event and returns how propagation
// continues. Teardown releases everything Init acquired and is idempotent.
type Node interface {
	ID() string
	Type() *NodeType
	Outputs() []string
	Fields() Fields
	State() State
	Init(ctx context.Context, g GraphHandle) error
	Execute(ctx context.Context, ev *Event) (Result, error)
	Teardown()
}

// Spec is what a Factory receives for one document node.
type Spec struct {
	ID      string
	Type    *NodeType
	Fields  Fields
	Outputs []string
}

// Base implements the bookkeeping shared by every node. Embed it and
// override Init, Execute and Teardown as needed.
type Base struct {
	spec  Spec
	state atomic.Int32
}

// NewBase wraps a spec.
func NewBase(spec Spec) Base {
	return Base{spec: spec}
}

func (b *Base) ID() string        { return b.spec.ID }
func (b *Base) Type() *NodeType   { return b.spec.Type }
func (b *Base) Outputs() []string { return b.spec.Outputs }
func (b *Base) Fields() Fields    { return b.spec.Fields }
func (b *Base) State() State      { return State(b.state.Load()) }

// Bind moves the node from Unbound to Initialized. It returns false when
// the node is already bound, making repeated Init calls no-ops.
func (b *Base) Bind() bool {
	return b.state.CompareAndSwap(int32(StateUnbound), int32(StateInitialized))
}

// Unbind returns the node to Unbound and reports whether it was bound.
func (b *Base) Unbind() bool {
	return State(b.state.Swap(int32(StateUnbound))) != StateUnbound
}

func (b *Base) markRunning() {
	b.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning))
}

// Init binds the node.
func (b *Base) Init(_ context.Context, _ GraphHandle) error {
	b.Bind()
	return nil
}

// Execute passes the event through unchanged.
func (b *Base) Execute(_ context.Context, _ *Event) (Result, error) {
	return Continue(), nil
}

// Teardown unbinds the node.
func (b *Base) Teardown() {
	b.Unbind()
}

type runner interface {
	markRunning()
}
