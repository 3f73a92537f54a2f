package nodes

import (
	"context"
	"time"

	"github.com/BaSui01/nodeflow/workflow"
)

func waitType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeWait,
		Group:              workflow.GroupFlow,
		Description:        "Continues the event after a delay",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("second", workflow.TypeDuration).
				WithUnit(workflow.UnitSecond).
				WithDefault(workflow.DurationValue(time.Second)).
				WithMin(0, false),
		},
		New: func(spec workflow.Spec) (workflow.Node, error) {
			return &Wait{Base: workflow.NewBase(spec), delay: spec.Fields.Consumer("second")}, nil
		},
	}
}

// Wait defers the continuation of the event.
type Wait struct {
	workflow.Base
	delay workflow.Consumer
}

func (n *Wait) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	v, err := n.delay.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}
	d, _ := v.AsDuration()
	return workflow.ContinueAfter(d), nil
}
