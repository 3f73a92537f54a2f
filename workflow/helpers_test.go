package workflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

// recorder collects the values seen by recording nodes, keyed by node id.
type recorder struct {
	mu   sync.Mutex
	seen map[string][]Value
}

func newRecorder() *recorder { return &recorder{seen: make(map[string][]Value)} }

func (r *recorder) add(node string, v Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[node] = append(r.seen[node], v)
}

func (r *recorder) values(node string) []Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Value(nil), r.seen[node]...)
}

func (r *recorder) count(node string) int {
	return len(r.values(node))
}

// triggerNode is an emitter fired by tests.
type triggerNode struct {
	Base
	mu   sync.Mutex
	last GraphHandle
}

func (n *triggerNode) Init(_ context.Context, g GraphHandle) error {
	n.Bind()
	n.mu.Lock()
	n.last = g
	n.mu.Unlock()
	return nil
}

func (n *triggerNode) fire(vars map[string]Value) {
	n.mu.Lock()
	g := n.last
	n.mu.Unlock()
	g.Emit(context.Background(), n, func(ev *Event) error {
		for k, v := range vars {
			ev.Set(k, v)
		}
		return nil
	})
}

type funcNode struct {
	Base
	exec func(n *funcNode, ev *Event) (Result, error)
	init func() error
}

func (n *funcNode) Init(_ context.Context, _ GraphHandle) error {
	if n.init != nil {
		if err := n.init(); err != nil {
			return err
		}
	}
	n.Bind()
	return nil
}

func (n *funcNode) Execute(_ context.Context, ev *Event) (Result, error) {
	return n.exec(n, ev)
}

var errInitBoom = errors.New("init boom")

func funcType(name string, outputs int, fields []FieldDescriptor, exec func(n *funcNode, ev *Event) (Result, error)) *NodeType {
	return &NodeType{
		Name:               name,
		Group:              GroupOperation,
		DefaultOutputCount: outputs,
		Fields:             fields,
		New: func(spec Spec) (Node, error) {
			return &funcNode{Base: NewBase(spec), exec: exec}, nil
		},
	}
}

// testRegistry registers the node types used by the engine tests.
func testRegistry(rec *recorder) *Registry {
	reg := NewRegistry()
	reg.MustRegister(&NodeType{
		Name:               "trigger",
		Group:              GroupEmitter,
		DefaultOutputCount: 1,
		Fields: []FieldDescriptor{
			NewField("mode", TypeEnum).WithDefault(EnumValue("A")).WithOptions(
				Option{Label: "Alpha", Key: "A"},
				Option{Label: "Beta", Key: "B"},
			),
		},
		New: func(spec Spec) (Node, error) {
			return &triggerNode{Base: NewBase(spec)}, nil
		},
	})
	reg.MustRegister(funcType("setvar", 1, []FieldDescriptor{
		NewField("name", TypeString).Require(),
		NewField("value", TypeAny).Require(),
	}, func(n *funcNode, ev *Event) (Result, error) {
		name, err := n.Fields().Static("name")
		if err != nil {
			return Result{}, err
		}
		v, err := n.Fields().Consumer("value").Resolve(ev)
		if err != nil {
			return Result{}, err
		}
		ev.Set(name.String(), v)
		return Continue(), nil
	}))
	reg.MustRegister(funcType("record", 1, []FieldDescriptor{
		NewField("input", TypeAny),
	}, func(n *funcNode, ev *Event) (Result, error) {
		v, err := n.Fields().Consumer("input").Resolve(ev)
		if err != nil {
			return Result{}, err
		}
		rec.add(n.ID(), v)
		return Continue(), nil
	}))
	reg.MustRegister(funcType("need", 1, []FieldDescriptor{
		NewField("input", TypeInteger).Require(),
	}, func(n *funcNode, ev *Event) (Result, error) {
		v, err := n.Fields().Consumer("input").Resolve(ev)
		if err != nil {
			return Result{}, err
		}
		rec.add(n.ID(), v)
		return Continue(), nil
	}))
	reg.MustRegister(funcType("branch", 2, []FieldDescriptor{
		NewField("pick", TypeInteger).WithDefault(IntValue(0)),
	}, func(n *funcNode, ev *Event) (Result, error) {
		v, err := n.Fields().Consumer("pick").Resolve(ev)
		if err != nil {
			return Result{}, err
		}
		idx, _ := v.AsInt()
		return ContinueOn(int(idx)), nil
	}))
	reg.MustRegister(funcType("delay", 1, []FieldDescriptor{
		NewField("for", TypeDuration).WithUnit(UnitMillisecond).WithDefault(DurationValue(50 * time.Millisecond)),
	}, func(n *funcNode, ev *Event) (Result, error) {
		v, err := n.Fields().Consumer("for").Resolve(ev)
		if err != nil {
			return Result{}, err
		}
		d, _ := v.AsDuration()
		return ContinueAfter(d), nil
	}))
	reg.MustRegister(funcType("pass", 1, nil, func(_ *funcNode, _ *Event) (Result, error) {
		return Continue(), nil
	}))
	reg.MustRegister(funcType("stop", 1, nil, func(_ *funcNode, _ *Event) (Result, error) {
		return Stop(), nil
	}))
	reg.MustRegister(funcType("fail", 1, nil, func(_ *funcNode, _ *Event) (Result, error) {
		return Result{}, errors.New("node failed")
	}))
	reg.MustRegister(funcType("panic", 1, nil, func(_ *funcNode, _ *Event) (Result, error) {
		panic("kaboom")
	}))
	reg.MustRegister(&NodeType{
		Name:               "badinit",
		Group:              GroupBase,
		DefaultOutputCount: 0,
		New: func(spec Spec) (Node, error) {
			return &funcNode{Base: NewBase(spec), init: func() error { return errInitBoom }}, nil
		},
	})
	return reg
}

// memoryStore is an in-process DocumentStore.
type memoryStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *memoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrDocumentNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func node(id, typ string, fields map[string]any, outputs ...string) NodeDocument {
	return NodeDocument{ID: id, Type: typ, Fields: fields, Outputs: outputs}
}

func variable(name string) map[string]any {
	return map[string]any{"variable": name}
}

func trigger(g *Graph, id string) *triggerNode {
	n, ok := g.Node(id)
	if !ok {
		panic("no trigger " + id)
	}
	return n.(*triggerNode)
}
