package nodes

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/workflow"
)

func logType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeLog,
		Group:              workflow.GroupDisplay,
		Description:        "Writes a line to the server log",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("message", workflow.TypeString).Require(),
			workflow.NewField("level", workflow.TypeEnum).
				WithDefault(workflow.EnumValue("INFO")).
				WithOptions(
					workflow.Option{Label: "Debug", Key: "DEBUG"},
					workflow.Option{Label: "Info", Key: "INFO"},
					workflow.Option{Label: "Warn", Key: "WARN"},
					workflow.Option{Label: "Error", Key: "ERROR"},
				),
		},
		New: func(spec workflow.Spec) (workflow.Node, error) {
			return &Log{
				Base:    workflow.NewBase(spec),
				message: spec.Fields.Consumer("message"),
				level:   spec.Fields.Consumer("level"),
			}, nil
		},
	}
}

// Log writes the expanded message with the event variables attached.
type Log struct {
	workflow.Base
	message workflow.Consumer
	level   workflow.Consumer
}

func (n *Log) Execute(_ context.Context, ev *workflow.Event) (workflow.Result, error) {
	msg, err := n.message.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}
	level, err := n.level.Resolve(ev)
	if err != nil {
		return workflow.Stop(), err
	}

	logger := ev.Graph().Logger().With(
		zap.String("node_id", n.ID()),
		zap.String("event_id", ev.ID()),
		zap.Any("variables", ev.Variables()),
	)
	text := host.Expand(msg.String(), templateVars(ev))
	switch level.String() {
	case "DEBUG":
		logger.Debug(text)
	case "WARN":
		logger.Warn(text)
	case "ERROR":
		logger.Error(text)
	default:
		logger.Info(text)
	}
	return workflow.Continue(), nil
}
