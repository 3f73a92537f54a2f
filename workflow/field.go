package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/nodeflow/host"
)

// Type is the declared type of a node field.
type Type string

const (
	TypeString   Type = "string"
	TypeInteger  Type = "integer"
	TypeDouble   Type = "double"
	TypeDuration Type = "duration"
	TypeEnum     Type = "enum"
	TypeClass    Type = "class"
	TypeAny      Type = "any"
)

// Unit is the display unit of a duration field. Values are always stored
// in base units (time.Duration) regardless of the declared unit.
type Unit string

const (
	UnitNone        Unit = ""
	UnitMillisecond Unit = "MILLISECOND"
	UnitSecond      Unit = "SECOND"
	UnitMinute      Unit = "MINUTE"
	UnitTick        Unit = "TICK"
)

// Base returns the duration of one unit.
func (u Unit) Base() time.Duration {
	switch u {
	case UnitSecond:
		return time.Second
	case UnitMinute:
		return time.Minute
	case UnitTick:
		return 50 * time.Millisecond
	default:
		return time.Millisecond
	}
}

// Direction tells whether a field reads from or writes to event variables.
type Direction string

const (
	Consume Direction = "consume"
	Produce Direction = "produce"
)

// Option is one entry of an enumerable field.
type Option struct {
	Label string `json:"label"`
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// OptionSource lists options that depend on live host state. h may be nil.
type OptionSource func(h host.Host) []Option

// FieldDescriptor declares a typed input or output slot of a node type.
type FieldDescriptor struct {
	Name         string
	Type         Type
	Unit         Unit
	Direction    Direction
	Required     bool
	Default      Value
	Options      []Option
	OptionSource OptionSource
	Min          *float64
	Max          *float64
	MinExclusive bool
	Description  string
}

// NewField starts a consumer descriptor.
func NewField(name string, typ Type) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: typ, Direction: Consume}
}

// NewOutput declares a producer writing to defaultVar unless rebound.
func NewOutput(name, defaultVar string) FieldDescriptor {
	return FieldDescriptor{
		Name:      name,
		Type:      TypeAny,
		Direction: Produce,
		Default:   StringValue(defaultVar),
	}
}

func (f FieldDescriptor) WithUnit(u Unit) FieldDescriptor          { f.Unit = u; return f }
func (f FieldDescriptor) WithDefault(v Value) FieldDescriptor      { f.Default = v; return f }
func (f FieldDescriptor) WithDescription(s string) FieldDescriptor { f.Description = s; return f }
func (f FieldDescriptor) Require() FieldDescriptor                 { f.Required = true; return f }

func (f FieldDescriptor) WithOptions(opts ...Option) FieldDescriptor {
	f.Options = append([]Option(nil), opts...)
	return f
}

func (f FieldDescriptor) WithOptionSource(src OptionSource) FieldDescriptor {
	f.OptionSource = src
	return f
}

// WithMin sets a lower bound expressed in the display unit.
func (f FieldDescriptor) WithMin(min float64, exclusive bool) FieldDescriptor {
	f.Min = &min
	f.MinExclusive = exclusive
	return f
}

// WithMax sets an inclusive upper bound expressed in the display unit.
func (f FieldDescriptor) WithMax(max float64) FieldDescriptor {
	f.Max = &max
	return f
}

// Enumerable reports whether Autocomplete can return anything.
func (f *FieldDescriptor) Enumerable() bool {
	return len(f.Options) > 0 || f.OptionSource != nil
}

func (f *FieldDescriptor) options(h host.Host) []Option {
	if f.OptionSource != nil {
		return f.OptionSource(h)
	}
	return f.Options
}

// Autocomplete returns the options whose label or key contains input,
// ignoring case, in declared order. The result is never nil.
func (f *FieldDescriptor) Autocomplete(h host.Host, input string) []Option {
	out := make([]Option, 0)
	if !f.Enumerable() {
		return out
	}
	needle := strings.ToLower(input)
	for _, opt := range f.options(h) {
		if strings.Contains(strings.ToLower(opt.Label), needle) ||
			strings.Contains(strings.ToLower(opt.Key), needle) {
			out = append(out, opt)
		}
	}
	return out
}

// DisplayDefault renders the default in the declared unit for the editor.
func (f *FieldDescriptor) DisplayDefault() any {
	if d, ok := f.Default.AsDuration(); ok {
		return durationInUnit(d, f.Unit)
	}
	return f.Default.Interface()
}

func durationInUnit(d time.Duration, u Unit) any {
	base := u.Base()
	if d%base == 0 {
		return int64(d / base)
	}
	return float64(d) / float64(base)
}

// ParseLiteral converts a decoded document value into a typed Value and
// validates it eagerly against the descriptor.
func (f *FieldDescriptor) ParseLiteral(raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	v, err := f.parse(raw)
	if err != nil {
		return Null(), err
	}
	if err := f.checkBounds(v); err != nil {
		return Null(), err
	}
	return v, nil
}

func (f *FieldDescriptor) parse(raw any) (Value, error) {
	switch f.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Null(), fmt.Errorf("expected string, got %T", raw)
		}
		return StringValue(s), nil

	case TypeInteger:
		n, ok := toNumber(raw)
		if !ok {
			return Null(), fmt.Errorf("expected integer, got %T", raw)
		}
		if n != math.Trunc(n) || math.Abs(n) >= math.MaxInt64 {
			return Null(), fmt.Errorf("%v is not an integer", raw)
		}
		return IntValue(int64(n)), nil

	case TypeDouble:
		n, ok := toNumber(raw)
		if !ok {
			return Null(), fmt.Errorf("expected number, got %T", raw)
		}
		return DoubleValue(n), nil

	case TypeDuration:
		// 文档中的数字按毫秒存储，字符串按 Go duration 语法解析
		if s, ok := raw.(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return Null(), fmt.Errorf("invalid duration %q", s)
			}
			if d < 0 {
				return Null(), fmt.Errorf("negative duration %q", s)
			}
			return DurationValue(d), nil
		}
		n, ok := toNumber(raw)
		if !ok {
			return Null(), fmt.Errorf("expected duration in milliseconds, got %T", raw)
		}
		if n < 0 || n != math.Trunc(n) {
			return Null(), fmt.Errorf("duration must be a non-negative whole number of milliseconds, got %v", raw)
		}
		return DurationValue(time.Duration(n) * time.Millisecond), nil

	case TypeEnum, TypeClass:
		s, ok := raw.(string)
		if !ok {
			return Null(), fmt.Errorf("expected option key, got %T", raw)
		}
		if len(f.Options) > 0 && !f.hasKey(s) {
			return Null(), fmt.Errorf("%q is not one of %s", s, strings.Join(f.keys(), ", "))
		}
		if f.Type == TypeClass {
			if s == "" {
				return Null(), fmt.Errorf("empty class name")
			}
			return ClassValue(s), nil
		}
		return EnumValue(s), nil

	case TypeAny:
		switch t := raw.(type) {
		case string:
			return StringValue(t), nil
		case bool:
			return BoolValue(t), nil
		}
		n, ok := toNumber(raw)
		if !ok {
			return Null(), fmt.Errorf("unsupported literal of type %T", raw)
		}
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return IntValue(int64(n)), nil
		}
		return DoubleValue(n), nil
	}
	return Null(), fmt.Errorf("unsupported field type %q", f.Type)
}

func (f *FieldDescriptor) checkBounds(v Value) error {
	if f.Min == nil && f.Max == nil {
		return nil
	}
	var n float64
	if d, ok := v.AsDuration(); ok {
		n = float64(d) / float64(f.Unit.Base())
	} else if x, ok := v.AsFloat(); ok {
		n = x
	} else {
		return nil
	}
	if f.Min != nil {
		if f.MinExclusive && n <= *f.Min {
			return fmt.Errorf("must be greater than %v", *f.Min)
		}
		if !f.MinExclusive && n < *f.Min {
			return fmt.Errorf("must be at least %v", *f.Min)
		}
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("must be at most %v", *f.Max)
	}
	return nil
}

func (f *FieldDescriptor) hasKey(key string) bool {
	for _, opt := range f.Options {
		if opt.Key == key {
			return true
		}
	}
	return false
}

func (f *FieldDescriptor) keys() []string {
	keys := make([]string, len(f.Options))
	for i, opt := range f.Options {
		keys[i] = opt.Key
	}
	return keys
}

// EncodeLiteral is the inverse of ParseLiteral. Whole-millisecond
// durations encode as numbers, anything finer as a Go duration string.
func EncodeLiteral(v Value) any {
	if d, ok := v.AsDuration(); ok && d%time.Millisecond != 0 {
		return d.String()
	}
	return v.Interface()
}

// coerce applies the runtime type check to a value read from a variable.
func (f *FieldDescriptor) coerce(v Value) (Value, bool) {
	switch f.Type {
	case TypeAny:
		return v, true
	case TypeString:
		switch v.Kind() {
		case KindString:
			return v, true
		case KindOpaque:
			return Null(), false
		}
		return StringValue(v.String()), true
	case TypeInteger:
		if n, ok := v.AsInt(); ok {
			return IntValue(n), true
		}
	case TypeDouble:
		if n, ok := v.AsFloat(); ok {
			return DoubleValue(n), true
		}
	case TypeDuration:
		if v.Kind() == KindDuration {
			return v, true
		}
		// 与文档字面量一致：数字一律按毫秒解释，不看显示单位
		if n, ok := v.AsFloat(); ok && n >= 0 {
			return DurationValue(time.Duration(n * float64(time.Millisecond))), true
		}
	case TypeEnum:
		if s, ok := v.AsString(); ok {
			return EnumValue(s), true
		}
	case TypeClass:
		if s, ok := v.AsString(); ok {
			return ClassValue(s), true
		}
	}
	return Null(), false
}

func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// =============================================================================
// Bindings
// =============================================================================

// Binding is how a node instance wires one field: a variable reference, a
// literal, or nothing (descriptor default).
type Binding struct {
	Variable   string
	Literal    Value
	HasLiteral bool
}

// Encode returns the document form of the binding.
func (b Binding) Encode() any {
	if b.Variable != "" {
		return map[string]any{"variable": b.Variable}
	}
	return EncodeLiteral(b.Literal)
}

// Fields holds the bound fields of one node instance.
type Fields struct {
	node     string
	descs    []FieldDescriptor
	bindings map[string]Binding
}

// BindFields parses the document field map of a node against the type's
// descriptors. Unknown fields, malformed literals and missing required
// fields produce a *LoadError.
func BindFields(nodeID string, nt *NodeType, raw map[string]any) (Fields, error) {
	fs := Fields{node: nodeID, descs: nt.Fields, bindings: make(map[string]Binding, len(raw))}
	for name, val := range raw {
		desc, ok := nt.Field(name)
		if !ok {
			return Fields{}, &LoadError{Node: nodeID, Field: name, Err: ErrUnknownField}
		}
		b, err := bindOne(desc, val)
		if err != nil {
			return Fields{}, &LoadError{Node: nodeID, Field: name, Value: val, Reason: err.Error()}
		}
		fs.bindings[name] = b
	}
	for i := range nt.Fields {
		desc := &nt.Fields[i]
		if !desc.Required || desc.Direction == Produce {
			continue
		}
		b, ok := fs.bindings[desc.Name]
		if ok && (b.Variable != "" || !b.Literal.IsNull()) {
			continue
		}
		if !desc.Default.IsNull() {
			continue
		}
		return Fields{}, &LoadError{Node: nodeID, Field: desc.Name, Reason: "required field is not bound"}
	}
	return fs, nil
}

func bindOne(desc *FieldDescriptor, val any) (Binding, error) {
	if m, ok := val.(map[string]any); ok {
		name, ok := m["variable"].(string)
		if !ok || strings.TrimSpace(name) == "" || len(m) != 1 {
			return Binding{}, fmt.Errorf("variable reference must be {\"variable\": \"<name>\"}")
		}
		return Binding{Variable: name}, nil
	}
	if desc.Direction == Produce {
		name, ok := val.(string)
		if !ok || name == "" {
			return Binding{}, fmt.Errorf("output must name a variable")
		}
		return Binding{Variable: name}, nil
	}
	lit, err := desc.ParseLiteral(val)
	if err != nil {
		return Binding{}, err
	}
	return Binding{Literal: lit, HasLiteral: true}, nil
}

// Binding returns the raw binding of a field.
func (fs Fields) Binding(name string) (Binding, bool) {
	b, ok := fs.bindings[name]
	return b, ok
}

// Encode returns the document form of all bound fields.
func (fs Fields) Encode() map[string]any {
	if len(fs.bindings) == 0 {
		return nil
	}
	out := make(map[string]any, len(fs.bindings))
	for name, b := range fs.bindings {
		out[name] = b.Encode()
	}
	return out
}

func (fs Fields) descriptor(name string) *FieldDescriptor {
	for i := range fs.descs {
		if fs.descs[i].Name == name {
			return &fs.descs[i]
		}
	}
	return nil
}

// Consumer returns the reader for a consume field.
func (fs Fields) Consumer(name string) Consumer {
	return Consumer{node: fs.node, name: name, desc: fs.descriptor(name), binding: fs.bindings[name]}
}

// Producer returns the writer for a produce field.
func (fs Fields) Producer(name string) Producer {
	p := Producer{node: fs.node, field: name}
	if b, ok := fs.bindings[name]; ok && b.Variable != "" {
		p.variable = b.Variable
	} else if desc := fs.descriptor(name); desc != nil {
		p.variable, _ = desc.Default.AsString()
	}
	return p
}

// Consumer resolves a field value against an event.
type Consumer struct {
	node    string
	name    string
	desc    *FieldDescriptor
	binding Binding
}

// Variable returns the bound variable name, if any.
func (c Consumer) Variable() string { return c.binding.Variable }

// Resolve returns the field's value for this event. A variable binding is
// looked up in the event; a missing variable is an error only when the
// field is required.
func (c Consumer) Resolve(ev *Event) (Value, error) {
	if c.desc == nil {
		return Null(), &FieldResolutionError{Node: c.node, Field: c.name, Err: ErrUnknownField}
	}
	if c.binding.Variable != "" {
		v, ok := ev.Get(c.binding.Variable)
		if !ok || v.IsNull() {
			if c.desc.Required {
				return Null(), &FieldResolutionError{
					Node: c.node, Field: c.name, Variable: c.binding.Variable, Err: ErrMissingVariable,
				}
			}
			return c.desc.Default, nil
		}
		out, ok := c.desc.coerce(v)
		if !ok {
			return Null(), &FieldResolutionError{
				Node: c.node, Field: c.name, Variable: c.binding.Variable,
				Err: fmt.Errorf("%w: %s field got %s", ErrTypeMismatch, c.desc.Type, v.Kind()),
			}
		}
		return out, nil
	}
	if c.binding.HasLiteral && !c.binding.Literal.IsNull() {
		return c.binding.Literal, nil
	}
	return c.desc.Default, nil
}

// Producer writes a field's value into the event variables.
type Producer struct {
	node     string
	field    string
	variable string
}

// Variable returns the target variable name.
func (p Producer) Variable() string { return p.variable }

// Write stores v under the producer's variable. Later writes win.
func (p Producer) Write(ev *Event, v Value) {
	if p.variable == "" {
		return
	}
	ev.Set(p.variable, v)
}

// Static returns the literal or default of a field that must not depend on
// an event, such as emitter configuration.
func (fs Fields) Static(name string) (Value, error) {
	desc := fs.descriptor(name)
	if desc == nil {
		return Null(), &LoadError{Node: fs.node, Field: name, Err: ErrUnknownField}
	}
	b := fs.bindings[name]
	if b.Variable != "" {
		return Null(), &LoadError{Node: fs.node, Field: name, Value: b.Variable, Reason: "field cannot reference a variable"}
	}
	if b.HasLiteral && !b.Literal.IsNull() {
		return b.Literal, nil
	}
	return desc.Default, nil
}
