package nodes

import (
	"context"

	"github.com/BaSui01/nodeflow/workflow"
	"github.com/BaSui01/nodeflow/workflow/expr"
)

// Condition outputs.
const (
	OutputTrue  = 0
	OutputFalse = 1
)

func conditionType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeCondition,
		Group:              workflow.GroupOperation,
		Description:        "Continues on output 0 when the expression holds, otherwise on output 1",
		DefaultOutputCount: 2,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("expression", workflow.TypeString).Require().
				WithDescription(`e.g. random > 0.5 && mode == "night"`),
		},
		New: newCondition,
	}
}

// Condition branches on a boolean expression over the event variables.
type Condition struct {
	workflow.Base
	source   workflow.Consumer
	compiled *expr.Expr
}

func newCondition(spec workflow.Spec) (workflow.Node, error) {
	n := &Condition{Base: workflow.NewBase(spec), source: spec.Fields.Consumer("expression")}
	// 字面量表达式在加载时编译，变量引用的表达式在执行时编译
	if n.source.Variable() == "" {
		v, err := spec.Fields.Static("expression")
		if err != nil {
			return nil, err
		}
		compiled, err := expr.Compile(v.String())
		if err != nil {
			return nil, &workflow.LoadError{Node: spec.ID, Field: "expression", Value: v.String(), Err: err}
		}
		n.compiled = compiled
	}
	return n, nil
}

func (n *Condition) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	compiled := n.compiled
	if compiled == nil {
		v, err := n.source.Resolve(ev)
		if err != nil {
			return workflow.Stop(), err
		}
		if compiled, err = expr.Compile(v.String()); err != nil {
			return workflow.Stop(), err
		}
	}
	if compiled.Eval(ev.Lookup) {
		return workflow.ContinueOn(OutputTrue), nil
	}
	return workflow.ContinueOn(OutputFalse), nil
}
