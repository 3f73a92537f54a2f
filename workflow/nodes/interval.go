package nodes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/nodeflow/workflow"
)

// Interval modes.
const (
	ModeFixedRate = "FIXED_RATE"
	ModeDelay     = "DELAY"
)

func intervalType() *workflow.NodeType {
	return &workflow.NodeType{
		Name:               TypeInterval,
		Group:              workflow.GroupEmitter,
		Description:        "Emits an empty event periodically",
		DefaultOutputCount: 1,
		Fields: []workflow.FieldDescriptor{
			workflow.NewField("delay", workflow.TypeDuration).
				WithUnit(workflow.UnitSecond).
				WithDefault(workflow.DurationValue(0)).
				WithMin(0, false).
				WithDescription("Wait before the first tick"),
			workflow.NewField("interval", workflow.TypeDuration).
				WithUnit(workflow.UnitSecond).
				WithDefault(workflow.DurationValue(5 * time.Second)).
				WithMin(0, true).
				WithDescription("Time between ticks"),
			workflow.NewField("type", workflow.TypeEnum).
				WithDefault(workflow.EnumValue(ModeDelay)).
				WithOptions(
					workflow.Option{Label: "Fixed rate", Key: ModeFixedRate, Value: ModeFixedRate},
					workflow.Option{Label: "Fixed delay", Key: ModeDelay, Value: ModeDelay},
				),
		},
		New: newInterval,
	}
}

// Interval registers a recurring task with the engine scheduler.
type Interval struct {
	workflow.Base
	delay    time.Duration
	interval time.Duration
	mode     string

	mu     sync.Mutex
	handle *workflow.Handle
}

func newInterval(spec workflow.Spec) (workflow.Node, error) {
	n := &Interval{Base: workflow.NewBase(spec)}
	var ok bool

	v, err := spec.Fields.Static("delay")
	if err != nil {
		return nil, err
	}
	if n.delay, ok = v.AsDuration(); !ok {
		return nil, fmt.Errorf("delay is not a duration")
	}
	if v, err = spec.Fields.Static("interval"); err != nil {
		return nil, err
	}
	if n.interval, ok = v.AsDuration(); !ok || n.interval <= 0 {
		return nil, &workflow.LoadError{Node: spec.ID, Field: "interval", Reason: "must be positive"}
	}
	if v, err = spec.Fields.Static("type"); err != nil {
		return nil, err
	}
	n.mode, _ = v.AsString()
	return n, nil
}

func (n *Interval) Init(_ context.Context, g workflow.GraphHandle) error {
	if !n.Bind() {
		return nil
	}
	tick := func() { g.Emit(g.Context(), n, nil) }
	name := "interval:" + n.ID()

	var (
		h   *workflow.Handle
		err error
	)
	if n.mode == ModeFixedRate {
		h, err = g.Scheduler().ScheduleAtFixedRate(name, tick, n.delay, n.interval)
	} else {
		h, err = g.Scheduler().ScheduleWithFixedDelay(name, tick, n.delay, n.interval)
	}
	if err != nil {
		n.Unbind()
		return err
	}
	n.mu.Lock()
	n.handle = h
	n.mu.Unlock()
	return nil
}

func (n *Interval) Teardown() {
	n.Unbind()
	n.mu.Lock()
	h := n.handle
	n.handle = nil
	n.mu.Unlock()
	h.Cancel()
}
