package nodes

import (
	"context"
	"errors"
	"strings"

	"github.com/BaSui01/nodeflow/workflow"
)

func setType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeSet,
		Group:              workflow.GroupOperation,
		Description:        "Stores a value under a variable name",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("name", workflow.TypeString).Require().
				WithDescription("Variable to write; may itself come from a variable"),
			workflow.NewField("value", workflow.TypeAny).Require(),
		},
		New: func(spec workflow.Spec) (workflow.Node, error) {
			return &Set{
				Base:  workflow.NewBase(spec),
				name:  spec.Fields.Consumer("name"),
				value: spec.Fields.Consumer("value"),
			}, nil
		},
	}
}

// Set writes value under name.
type Set struct {
	workflow.Base
	name  workflow.Consumer
	value workflow.Consumer
}

func (n *Set) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	name, err := n.name.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}
	value, err := n.value.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}
	key := strings.TrimSpace(name.String())
	if key == "" {
		return workflow.Stop(), errors.New("variable name is empty")
	}
	ev.Set(key, value)
	return workflow.Continue(), nil
}
