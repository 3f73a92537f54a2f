package workflow

import (
	"fmt"
	"time"
)

type resultMode uint8

const (
	modeContinue resultMode = iota
	modeSelect
	modeDefer
	modeStop
)

// Result tells the runtime where an event goes after a node executes.
type Result struct {
	mode    resultMode
	outputs []int
	delay   time.Duration
}

// Continue propagates to every connected output in declaration order.
func Continue() Result { return Result{mode: modeContinue} }

// ContinueOn propagates only to the given output indices.
func ContinueOn(outputs ...int) Result {
	return Result{mode: modeSelect, outputs: outputs}
}

// ContinueAfter resumes on every output once d has elapsed. The calling
// goroutine returns immediately.
func ContinueAfter(d time.Duration) Result {
	return Result{mode: modeDefer, delay: d}
}

// Stop ends propagation of the event on this path.
func Stop() Result { return Result{mode: modeStop} }

func (r Result) Stopped() bool          { return r.mode == modeStop }
func (r Result) Deferred() bool         { return r.mode == modeDefer }
func (r Result) Delay() time.Duration   { return r.delay }
func (r Result) SelectedOutputs() []int { return r.outputs }

func (r Result) String() string {
	switch r.mode {
	case modeSelect:
		return fmt.Sprintf("continue%v", r.outputs)
	case modeDefer:
		return "continue after " + r.delay.String()
	case modeStop:
		return "stop"
	}
	return "continue"
}

// targets resolves the result against a node's output slots. Unconnected
// and out-of-range slots are skipped.
func (r Result) targets(outputs []string) []string {
	var picked []string
	switch r.mode {
	case modeStop:
		return nil
	case modeSelect:
		for _, idx := range r.outputs {
			if idx >= 0 && idx < len(outputs) && outputs[idx] != "" {
				picked = append(picked, outputs[idx])
			}
		}
	default:
		for _, id := range outputs {
			if id != "" {
				picked = append(picked, id)
			}
		}
	}
	return picked
}
