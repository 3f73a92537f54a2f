package nodes

import (
	"sync"

	"github.com/BaSui01/nodeflow/workflow"
)

// Type names of the built-in nodes.
const (
	TypeEventListener = "event_listener"
	TypeInterval      = "interval"
	TypeRandom        = "random"
	TypeSet           = "set"
	TypeWait          = "wait"
	TypeSendChat      = "send_chat"
	TypeCondition     = "condition"
	TypeLog           = "log"
)

var (
	registryOnce sync.Once
	registry     *workflow.Registry
)

// Registry returns the process-wide catalog. It is built on first use from
// Builtins; later calls return the same instance.
func Registry() *workflow.Registry {
	registryOnce.Do(func() {
		r := workflow.NewRegistry()
		for _, t := range Builtins() {
			r.MustRegister(t)
		}
		registry = r
	})
	return registry
}

// Builtins returns fresh definitions of every built-in node type, in the
// order the editor palette shows them.
func Builtins() []*workflow.NodeType {
	return []*workflow.NodeType{
		eventListenerType(),
		intervalType(),
		randomType(),
		setType(),
		conditionType(),
		waitType(),
		sendChatType(),
		logType(),
	}
}
