package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingVariable  = errors.New("missing required variable")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrUnknownNodeType  = errors.New("unknown node type")
	ErrUnknownField     = errors.New("unknown field")
	ErrHopLimit         = errors.New("hop limit exceeded")
	ErrSchedulerClosed  = errors.New("scheduler is closed")
	ErrDocumentNotFound = errors.New("workflow document not found")
)

// LoadError reports a document that cannot be decoded, validated or
// installed. The previously active graph is unaffected.
type LoadError struct {
	Node   string
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("load workflow")
	if e.Node != "" {
		fmt.Fprintf(&b, ": node %q", e.Node)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " value %v", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// FieldResolutionError aborts the current event at the consuming node.
type FieldResolutionError struct {
	Node     string
	Field    string
	Variable string
	Err      error
}

func (e *FieldResolutionError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("node %q field %q variable %q: %v", e.Node, e.Field, e.Variable, e.Err)
	}
	return fmt.Sprintf("node %q field %q: %v", e.Node, e.Field, e.Err)
}

func (e *FieldResolutionError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure (or recovered panic) inside a node body.
type ExecutionError struct {
	Node     string
	NodeType string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute node %q (%s): %v", e.Node, e.NodeType, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SchedulerError reports a task that panicked or could not be scheduled.
type SchedulerError struct {
	Task string
	Err  error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler task %q: %v", e.Task, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }
