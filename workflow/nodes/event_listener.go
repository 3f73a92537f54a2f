package nodes

import (
	"context"
	"sync"

	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/workflow"
)

func eventListenerType() *workflow.NodeType {
	classes := host.Classes()
	opts := make([]workflow.Option, 0, len(classes))
	for _, c := range classes {
		opts = append(opts, workflow.Option{Label: c.Label, Key: string(c.Class), Value: string(c.Class)})
	}
	return &workflow.NodeType{
		Name:               TypeEventListener,
		Group:              workflow.GroupEmitter,
		Description:        "Starts an event whenever the host fires the selected event class",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("event", workflow.TypeClass).Require().WithOptions(opts...),
			workflow.NewOutput("output", "event"),
		},
		New: newEventListener,
	}
}

// EventListener subscribes to one host event class and emits the raw host
// event into the graph.
type EventListener struct {
	workflow.Base
	class  host.EventClass
	output workflow.Producer

	mu  sync.Mutex
	sub host.Subscription
}

func newEventListener(spec workflow.Spec) (workflow.Node, error) {
	v, err := spec.Fields.Static("event")
	if err != nil {
		return nil, err
	}
	class, _ := v.AsString()
	return &EventListener{
		Base:   workflow.NewBase(spec),
		class:  host.EventClass(class),
		output: spec.Fields.Producer("output"),
	}, nil
}

// Class returns the subscribed event class.
func (n *EventListener) Class() host.EventClass { return n.class }

func (n *EventListener) Init(_ context.Context, g workflow.GraphHandle) error {
	if !n.Bind() {
		return nil
	}
	sub, err := g.Host().Subscribe(n.class, func(ctx context.Context, ev host.Event) {
		g.Emit(ctx, n, func(e *workflow.Event) error {
			n.output.Write(e, workflow.OpaqueValue(ev))
			return nil
		})
	})
	if err != nil {
		n.Unbind()
		return err
	}
	n.mu.Lock()
	n.sub = sub
	n.mu.Unlock()
	return nil
}

func (n *EventListener) Teardown() {
	n.Unbind()
	n.mu.Lock()
	sub := n.sub
	n.sub = nil
	n.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
