package nodes

import (
	"context"
	"math/rand/v2"

	"github.com/BaSui01/nodeflow/workflow"
)

func randomType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeRandom,
		Group:              workflow.GroupOperation,
		Description:        "Writes a uniform random number in [0, 1)",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewOutput("output", "random"),
		},
		New: func(spec workflow.Spec) (workflow.Node, error) {
			return &Random{Base: workflow.NewBase(spec), output: spec.Fields.Producer("output")}, nil
		},
	}
}

// Random produces a double in [0, 1).
type Random struct {
	workflow.Base
	output workflow.Producer
}

func (n *Random) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	n.output.Write(ev, workflow.DoubleValue(rand.Float64()))
	return workflow.Continue(), nil
}
