package nodes_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/workflow"
	"github.com/BaSui01/nodeflow/workflow/nodes"
)

type harness struct {
	engine  *workflow.Engine
	host    *host.Local
	logs    *observer.ObservedLogs
	started atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	h := &harness{host: host.NewLocal(logger), logs: logs}
	h.engine = workflow.NewEngine(workflow.Options{
		Registry: nodes.Registry(),
		Host:     h.host,
		Logger:   logger,
	})
	h.engine.Observers().Add(workflow.ObserverFunc(func(n workflow.Notification) {
		if n.Kind == workflow.NotifyEventStarted {
			h.started.Add(1)
		}
	}))
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) load(t *testing.T, nodes ...workflow.NodeDocument) *workflow.Graph {
	t.Helper()
	g, err := h.engine.Load(context.Background(), &workflow.Document{Nodes: nodes})
	require.NoError(t, err)
	return g
}

func (h *harness) join(p host.Player) int {
	return h.host.Publish(context.Background(), &host.GenericEvent{EventClass: host.ClassPlayerJoin, Player: p})
}

// messages returns the log lines written by log nodes.
func (h *harness) messages() []string {
	var out []string
	for _, e := range h.logs.FilterField(zap.String("component", "workflow_runtime")).All() {
		if _, ok := e.ContextMap()["variables"]; ok {
			out = append(out, e.Message)
		}
	}
	return out
}

func nd(id, typ string, fields map[string]any, outputs ...string) workflow.NodeDocument {
	return workflow.NodeDocument{ID: id, Type: typ, Fields: fields, Outputs: outputs}
}

func ref(name string) map[string]any {
	return map[string]any{"variable": name}
}

func onJoin(id string, outputs ...string) workflow.NodeDocument {
	return nd(id, nodes.TypeEventListener, map[string]any{"event": string(host.ClassPlayerJoin)}, outputs...)
}
