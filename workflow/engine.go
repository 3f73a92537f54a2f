package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/nodeflow/host"
)

// ErrNodeNotFound is returned when an id names neither a node type nor a
// node of the active graph.
var ErrNodeNotFound = errors.New("node not found")

// DocumentStore persists the editor's workflow document.
type DocumentStore interface {
	// Load returns ErrDocumentNotFound when nothing was saved yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Options configures an Engine.
type Options struct {
	Registry    *Registry
	Host        host.Host
	Store       DocumentStore
	Logger      *zap.Logger
	Metrics     MetricsRecorder
	Tracer      trace.Tracer
	Scheduler   SchedulerConfig
	MaxHops     int
	HistorySize int
}

const (
	defaultMaxHops     = 1000
	defaultHistorySize = 100
)

// Engine owns the active graph and everything shared between reloads.
type Engine struct {
	registry *Registry
	store    DocumentStore
	rt       *runtime
	history  *HistoryStore
	logger   *zap.Logger

	loadMu      sync.Mutex
	active      atomic.Pointer[Graph]
	lastVersion int64

	closeOnce sync.Once
}

// NewEngine creates an engine with no graph installed.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/BaSui01/nodeflow/workflow")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Host == nil {
		opts.Host = host.NewLocal(opts.Logger)
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = defaultMaxHops
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}

	logger := opts.Logger.With(zap.String("component", "workflow_engine"))
	observers := NewObserverSet(opts.Metrics)
	e := &Engine{
		registry: opts.Registry,
		store:    opts.Store,
		logger:   logger,
		history:  NewHistoryStore(opts.HistorySize),
		rt: &runtime{
			scheduler: NewScheduler(opts.Scheduler, opts.Logger, opts.Metrics),
			host:      opts.Host,
			observers: observers,
			logger:    opts.Logger.With(zap.String("component", "workflow_runtime")),
			metrics:   opts.Metrics,
			tracer:    opts.Tracer,
			maxHops:   opts.MaxHops,
		},
	}
	observers.Add(e.history)
	return e
}

func (e *Engine) Registry() *Registry     { return e.registry }
func (e *Engine) Scheduler() *Scheduler   { return e.rt.scheduler }
func (e *Engine) Host() host.Host         { return e.rt.host }
func (e *Engine) Observers() *ObserverSet { return e.rt.observers }
func (e *Engine) History() *HistoryStore  { return e.history }
func (e *Engine) Active() *Graph          { return e.active.Load() }
func (e *Engine) HasStore() bool          { return e.store != nil }

// Version returns the load timestamp of the active graph, 0 if none.
func (e *Engine) Version() int64 {
	if g := e.active.Load(); g != nil {
		return g.version
	}
	return 0
}

// Serialize returns the document of the active graph, or an empty
// document when nothing is loaded.
func (e *Engine) Serialize() *Document {
	if g := e.active.Load(); g != nil {
		return g.Document()
	}
	return &Document{Nodes: []NodeDocument{}}
}

// Validate builds doc against the registry without installing it.
func (e *Engine) Validate(doc *Document) error {
	_, err := buildGraph(e.rt, e.registry, doc)
	return err
}

// LoadBytes parses and loads a JSON or YAML document.
func (e *Engine) LoadBytes(ctx context.Context, data []byte) (*Graph, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		e.rt.metrics.RecordLoad("error")
		return nil, err
	}
	return e.Load(ctx, doc)
}

// Load replaces the active graph with doc. The previous graph is torn
// down before the new one is initialised; if anything fails the previous
// graph stays installed and running.
func (e *Engine) Load(ctx context.Context, doc *Document) (*Graph, error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	g, err := buildGraph(e.rt, e.registry, doc)
	if err != nil {
		e.rt.metrics.RecordLoad("error")
		e.logger.Warn("workflow document rejected", zap.Error(err))
		return nil, err
	}
	g.version = e.nextVersion()

	old := e.active.Load()
	if old != nil {
		old.stop()
	}
	if err := g.start(ctx); err != nil {
		e.rt.metrics.RecordLoad("error")
		e.logger.Error("workflow init failed, restoring previous graph", zap.Error(err))
		if old != nil {
			if rerr := old.start(ctx); rerr != nil {
				e.logger.Error("restore previous graph failed", zap.Error(rerr))
			}
		}
		return nil, err
	}

	e.active.Store(g)
	e.rt.metrics.RecordLoad("ok")
	e.rt.metrics.SetGraphNodes(g.Len())
	e.logger.Info("workflow loaded",
		zap.Int64("version", g.version),
		zap.Int("nodes", g.Len()),
		zap.String("name", g.name))
	e.rt.observers.Publish(Notification{
		Kind:         NotifyGraphLoaded,
		GraphVersion: g.version,
		Timestamp:    time.Now(),
	})
	return g, nil
}

func (e *Engine) nextVersion() int64 {
	v := time.Now().UnixMilli()
	if v <= e.lastVersion {
		v = e.lastVersion + 1
	}
	e.lastVersion = v
	return v
}

// Save persists doc without loading it.
func (e *Engine) Save(ctx context.Context, doc *Document) error {
	if e.store == nil {
		return errors.New("no document store configured")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := doc.ToJSON()
	if err != nil {
		return err
	}
	if err := e.store.Save(ctx, data); err != nil {
		return fmt.Errorf("save workflow document: %w", err)
	}
	return nil
}

// Persisted returns the saved document, or ErrDocumentNotFound.
func (e *Engine) Persisted(ctx context.Context) (*Document, error) {
	if e.store == nil {
		return nil, ErrDocumentNotFound
	}
	data, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

// LoadPersisted loads the saved document, if there is one.
func (e *Engine) LoadPersisted(ctx context.Context) (*Graph, error) {
	doc, err := e.Persisted(ctx)
	if err != nil {
		return nil, err
	}
	return e.Load(ctx, doc)
}

// ResolveType maps a node type name, or a node id of the active graph, to
// its type.
func (e *Engine) ResolveType(id string) (*NodeType, bool) {
	if nt, ok := e.registry.Get(id); ok {
		return nt, true
	}
	if g := e.active.Load(); g != nil {
		if n, ok := g.Node(id); ok {
			return n.Type(), true
		}
	}
	return nil, false
}

// Autocomplete suggests values for a field. An empty field name selects
// the first enumerable field of the type.
func (e *Engine) Autocomplete(id, field, input string) ([]Option, error) {
	nt, ok := e.ResolveType(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if field == "" {
		for i := range nt.Fields {
			if nt.Fields[i].Enumerable() {
				return nt.Fields[i].Autocomplete(e.rt.host, input), nil
			}
		}
		return []Option{}, nil
	}
	desc, ok := nt.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, field, nt.Name)
	}
	return desc.Autocomplete(e.rt.host, input), nil
}

// Close tears down the active graph and stops the scheduler.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.loadMu.Lock()
		if g := e.active.Load(); g != nil {
			g.stop()
		}
		e.loadMu.Unlock()
		e.rt.scheduler.Close()
	})
}
