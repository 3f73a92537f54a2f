package workflow

import (
	"fmt"
	"sync"
)

// Group classifies node types for the editor palette.
type Group string

const (
	GroupEmitter   Group = "EMITTER"
	GroupOperation Group = "OPERATION"
	GroupFlow      Group = "FLOW"
	GroupDisplay   Group = "DISPLAY"
	GroupBase      Group = "BASE"
)

// Factory builds a node instance from its bound configuration.
type Factory func(spec Spec) (Node, error)

// NodeType describes a kind of node. Immutable once registered.
type NodeType struct {
	Name               string
	Group              Group
	Description        string
	DefaultOutputCount int
	Fields             []FieldDescriptor
	New                Factory
}

// Field looks up a descriptor by name.
func (t *NodeType) Field(name string) (*FieldDescriptor, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// FieldInfo is the editor view of a descriptor.
type FieldInfo struct {
	Name         string    `json:"name"`
	Type         Type      `json:"type"`
	Unit         Unit      `json:"unit,omitempty"`
	Direction    Direction `json:"direction"`
	Required     bool      `json:"required"`
	Default      any       `json:"default,omitempty"`
	Options      []Option  `json:"options,omitempty"`
	Autocomplete bool      `json:"autocomplete"`
	Min          *float64  `json:"min,omitempty"`
	Max          *float64  `json:"max,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// NodeTypeInfo is the editor view of a node type.
type NodeTypeInfo struct {
	Name               string      `json:"name"`
	Group              Group       `json:"group"`
	Description        string      `json:"description,omitempty"`
	DefaultOutputCount int         `json:"default_output_count"`
	Fields             []FieldInfo `json:"fields"`
}

// Info returns the serializable description of the type.
func (t *NodeType) Info() NodeTypeInfo {
	info := NodeTypeInfo{
		Name:               t.Name,
		Group:              t.Group,
		Description:        t.Description,
		DefaultOutputCount: t.DefaultOutputCount,
		Fields:             make([]FieldInfo, 0, len(t.Fields)),
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		info.Fields = append(info.Fields, FieldInfo{
			Name:         f.Name,
			Type:         f.Type,
			Unit:         f.Unit,
			Direction:    f.Direction,
			Required:     f.Required,
			Default:      f.DisplayDefault(),
			Options:      f.Options,
			Autocomplete: f.Enumerable(),
			Min:          f.Min,
			Max:          f.Max,
			Description:  f.Description,
		})
	}
	return info
}

// Registry maps node type names to their definitions.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*NodeType
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*NodeType)}
}

// Register adds a node type. Duplicate names are rejected.
func (r *Registry) Register(t *NodeType) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("node type name is required")
	}
	if t.New == nil {
		return fmt.Errorf("node type %q: constructor is required", t.Name)
	}
	if t.DefaultOutputCount < 0 {
		return fmt.Errorf("node type %q: negative output count", t.Name)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("node type %q: field name is required", t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("node type %q: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("node type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register that panics, for init-time tables.
func (r *Registry) MustRegister(t *NodeType) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get looks up a node type.
func (r *Registry) Get(name string) (*NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// List returns node types in registration order.
func (r *Registry) List() []*NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NodeType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}
