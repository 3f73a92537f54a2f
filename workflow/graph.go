package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/host"
	"github.com/BaSui01/nodeflow/types"
)

// GraphHandle is the non-owning view of a graph handed to nodes.
type GraphHandle interface {
	Version() int64
	Context() context.Context
	Scheduler() *Scheduler
	Host() host.Host
	Logger() *zap.Logger
	// Emit creates an event originating at origin, lets seed populate it
	// and propagates it synchronously on the calling goroutine.
	Emit(ctx context.Context, origin Node, seed func(ev *Event) error)
}

// runtime holds what every graph of an engine shares.
type runtime struct {
	scheduler *Scheduler
	host      host.Host
	observers *ObserverSet
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer
	maxHops   int
}

const (
	statusCompleted = "completed"
	statusDeferred  = "deferred"
	statusFailed    = "failed"
	statusDropped   = "dropped"
)

// Graph is an installed set of node instances.
type Graph struct {
	rt          *runtime
	name        string
	description string
	nodes       map[string]Node
	order       []Node
	positions   map[string]*Position
	version     int64

	closed atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	deferred map[*Handle]struct{}
}

func buildGraph(rt *runtime, reg *Registry, doc *Document) (*Graph, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	g := &Graph{
		rt:          rt,
		name:        doc.Name,
		description: doc.Description,
		nodes:       make(map[string]Node, len(doc.Nodes)),
		order:       make([]Node, 0, len(doc.Nodes)),
		positions:   make(map[string]*Position),
		deferred:    make(map[*Handle]struct{}),
		ctx:         context.Background(),
		cancel:      func() {},
	}
	g.closed.Store(true)

	for _, nd := range doc.Nodes {
		nt, ok := reg.Get(nd.Type)
		if !ok {
			return nil, &LoadError{Node: nd.ID, Value: nd.Type, Err: ErrUnknownNodeType}
		}
		fields, err := BindFields(nd.ID, nt, nd.Fields)
		if err != nil {
			return nil, err
		}
		n, err := nt.New(Spec{ID: nd.ID, Type: nt, Fields: fields, Outputs: slices.Clone(nd.Outputs)})
		if err != nil {
			var le *LoadError
			if errors.As(err, &le) {
				return nil, err
			}
			return nil, &LoadError{Node: nd.ID, Reason: "construct node", Err: err}
		}
		g.nodes[nd.ID] = n
		g.order = append(g.order, n)
		if nd.Position != nil {
			p := *nd.Position
			g.positions[nd.ID] = &p
		}
	}
	return g, nil
}

func (g *Graph) Version() int64        { return g.version }
func (g *Graph) Scheduler() *Scheduler { return g.rt.scheduler }
func (g *Graph) Host() host.Host       { return g.rt.host }
func (g *Graph) Logger() *zap.Logger   { return g.rt.logger }
func (g *Graph) Name() string          { return g.name }
func (g *Graph) Len() int              { return len(g.order) }
func (g *Graph) Closed() bool          { return g.closed.Load() }

// Node looks up a node instance by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Context is cancelled when the graph is torn down.
func (g *Graph) Context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

// Nodes returns the nodes in document order.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.order)
}

// Document serializes the graph back to its document form.
func (g *Graph) Document() *Document {
	doc := &Document{Name: g.name, Description: g.description, Nodes: make([]NodeDocument, 0, len(g.order))}
	for _, n := range g.order {
		nd := NodeDocument{
			ID:      n.ID(),
			Type:    n.Type().Name,
			Fields:  n.Fields().Encode(),
			Outputs: slices.Clone(n.Outputs()),
		}
		if p, ok := g.positions[n.ID()]; ok {
			cp := *p
			nd.Position = &cp
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

// start initialises every node. On failure the nodes already initialised
// are torn down again and the graph stays closed.
func (g *Graph) start(ctx context.Context) error {
	g.mu.Lock()
	g.ctx, g.cancel = context.WithCancel(context.WithoutCancel(ctx))
	gctx := g.ctx
	g.mu.Unlock()
	g.closed.Store(false)

	for i, n := range g.order {
		if err := n.Init(gctx, g); err != nil {
			for j := i; j >= 0; j-- {
				g.order[j].Teardown()
			}
			g.shutdown()
			return &LoadError{Node: n.ID(), Reason: "init node", Err: err}
		}
	}
	for _, n := range g.order {
		if r, ok := n.(runner); ok {
			r.markRunning()
		}
	}
	return nil
}

// stop tears down every node and cancels pending continuations. Events
// already propagating finish against this graph.
func (g *Graph) stop() {
	if g.closed.Load() {
		return
	}
	g.shutdown()
	for i := len(g.order) - 1; i >= 0; i-- {
		g.order[i].Teardown()
	}
}

func (g *Graph) shutdown() {
	g.closed.Store(true)
	g.mu.Lock()
	g.cancel()
	for h := range g.deferred {
		h.Cancel()
	}
	clear(g.deferred)
	g.mu.Unlock()
}

// Emit implements GraphHandle.
func (g *Graph) Emit(ctx context.Context, origin Node, seed func(ev *Event) error) {
	originType := origin.Type().Name
	if g.closed.Load() {
		g.rt.metrics.RecordEvent(originType, statusDropped)
		return
	}

	ev := newEvent(g, origin)
	ctx, span := g.rt.tracer.Start(ctx, "workflow.event", trace.WithAttributes(
		attribute.String("workflow.event_id", ev.id),
		attribute.String("workflow.origin", origin.ID()),
		attribute.Int64("workflow.version", g.version),
	))
	defer span.End()
	ctx = types.WithEventID(ctx, ev.id)

	if seed != nil {
		if err := seed(ev); err != nil {
			g.fail(ev, origin, &ExecutionError{Node: origin.ID(), NodeType: originType, Err: err})
			g.rt.metrics.RecordEvent(originType, statusFailed)
			return
		}
	}
	g.publish(NotifyEventStarted, ev, origin, "", nil, 0)
	status := g.propagate(ctx, ev, origin, Continue())
	if status == statusFailed {
		span.SetStatus(codes.Error, "event failed")
	}
	g.rt.metrics.RecordEvent(originType, status)
}

type step struct {
	ev   *Event
	node Node
}

// propagate walks the graph depth-first from the node that produced res.
func (g *Graph) propagate(ctx context.Context, ev *Event, from Node, res Result) string {
	status := statusCompleted
	stack, st := g.successors(nil, ev, from, res)
	status = mergeStatus(status, st)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cur.ev.cursor = cur.node.ID()
		cur.ev.hops++
		if cur.ev.hops > g.rt.maxHops {
			g.fail(cur.ev, cur.node, &ExecutionError{
				Node: cur.node.ID(), NodeType: cur.node.Type().Name,
				Err: fmt.Errorf("%w (%d)", ErrHopLimit, g.rt.maxHops),
			})
			status = statusFailed
			continue
		}

		out, err := g.execute(ctx, cur.ev, cur.node)
		if err != nil {
			g.fail(cur.ev, cur.node, err)
			status = statusFailed
			continue
		}
		stack, st = g.successors(stack, cur.ev, cur.node, out)
		status = mergeStatus(status, st)
	}
	return status
}

func mergeStatus(cur, next string) string {
	if cur == statusFailed || next == "" {
		return cur
	}
	if next == statusFailed || next == statusDeferred {
		return next
	}
	return cur
}

// successors pushes the next steps for res onto stack. Targets are pushed
// in reverse so they pop in declaration order; every branch after the
// first gets its own copy of the event.
func (g *Graph) successors(stack []step, ev *Event, from Node, res Result) ([]step, string) {
	if res.Deferred() {
		if err := g.deferContinuation(ev, from, res.Delay()); err != nil {
			g.fail(ev, from, err)
			return stack, statusFailed
		}
		return stack, statusDeferred
	}
	var next []Node
	for _, id := range res.targets(from.Outputs()) {
		if n, ok := g.nodes[id]; ok {
			next = append(next, n)
		}
	}
	if len(next) == 0 {
		ev.paths.open.Add(-1)
		g.publish(NotifyEventCompleted, ev, from, res.String(), nil, 0)
		return stack, ""
	}
	ev.paths.open.Add(int32(len(next) - 1))
	for i := len(next) - 1; i >= 0; i-- {
		e := ev
		if i > 0 {
			e = ev.fork()
		}
		stack = append(stack, step{ev: e, node: next[i]})
	}
	return stack, ""
}

func (g *Graph) deferContinuation(ev *Event, from Node, d time.Duration) error {
	ev.hops = 0
	ev.paths.parked.Add(1)
	g.publish(NotifyEventDeferred, ev, from, "continue after "+d.String(), nil, 0)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed.Load() {
		return nil
	}
	var h *Handle
	var err error
	h, err = g.rt.scheduler.ScheduleOnce("continue:"+from.ID(), func() {
		g.mu.Lock()
		delete(g.deferred, h)
		gctx := g.ctx
		g.mu.Unlock()
		if g.closed.Load() {
			return
		}
		ev.paths.parked.Add(-1)
		ctx, span := g.rt.tracer.Start(gctx, "workflow.continue", trace.WithAttributes(
			attribute.String("workflow.event_id", ev.id),
			attribute.String("workflow.node_id", from.ID()),
		))
		defer span.End()
		g.propagate(types.WithEventID(ctx, ev.id), ev, from, Continue())
	}, d)
	if err != nil {
		ev.paths.parked.Add(-1)
		return &ExecutionError{Node: from.ID(), NodeType: from.Type().Name, Err: err}
	}
	g.deferred[h] = struct{}{}
	return nil
}

func (g *Graph) execute(ctx context.Context, ev *Event, n Node) (res Result, err error) {
	nodeType := n.Type().Name
	ctx, span := g.rt.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node_id", n.ID()),
		attribute.String("workflow.node_type", nodeType),
	))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{Node: n.ID(), NodeType: nodeType, Err: fmt.Errorf("panic: %v", r)}
		}
		d := time.Since(start)
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		g.rt.metrics.RecordNode(nodeType, status, d)
		if err == nil {
			g.publish(NotifyNodeExecuted, ev, n, res.String(), nil, d)
		}
	}()

	res, err = n.Execute(ctx, ev)
	if err != nil {
		var fre *FieldResolutionError
		var exe *ExecutionError
		if !errors.As(err, &fre) && !errors.As(err, &exe) {
			err = &ExecutionError{Node: n.ID(), NodeType: nodeType, Err: err}
		}
	}
	return res, err
}

func (g *Graph) fail(ev *Event, n Node, err error) {
	fields := []zap.Field{
		zap.String("event_id", ev.id),
		zap.String("node_id", n.ID()),
		zap.String("node_type", n.Type().Name),
		zap.Error(err),
	}
	var fre *FieldResolutionError
	if errors.As(err, &fre) {
		fields = append(fields, zap.String("field", fre.Field), zap.String("variable", fre.Variable))
		g.rt.logger.Warn("field resolution failed, event dropped", fields...)
	} else {
		g.rt.logger.Error("node execution failed, event dropped", fields...)
	}
	ev.paths.open.Add(-1)
	g.publish(NotifyEventFailed, ev, n, "", err, 0)
}

func (g *Graph) publish(kind NotificationKind, ev *Event, n Node, result string, err error, d time.Duration) {
	if g.rt.observers.Len() == 0 {
		return
	}
	note := Notification{
		Kind:         kind,
		GraphVersion: g.version,
		EventID:      ev.id,
		NodeID:       n.ID(),
		NodeType:     n.Type().Name,
		Variables:    ev.Variables(),
		Result:       result,
		Duration:     d,
		Timestamp:    time.Now(),
		OpenPaths:    int(ev.paths.open.Load()),
		ParkedPaths:  int(ev.paths.parked.Load()),
	}
	if err != nil {
		note.Error = err.Error()
	}
	g.rt.observers.Publish(note)
}
