package nodes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nodeflow/workflow"
	"github.com/BaSui01/nodeflow/workflow/nodes"
)

func TestInterval_DelayModePacing(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for several seconds")
	}
	h := newHarness(t)
	start := time.Now()
	h.load(t, nd("tick", nodes.TypeInterval, map[string]any{
		"delay":    0,
		"interval": 1000,
		"type":     nodes.ModeDelay,
	}))

	time.Sleep(4100*time.Millisecond - time.Since(start))
	assert.LessOrEqual(t, h.started.Load(), int32(5), "at most 5 ticks within 4.1s")

	time.Sleep(4500*time.Millisecond - time.Since(start))
	assert.GreaterOrEqual(t, h.started.Load(), int32(4), "at least 4 ticks within 4.5s")
}

func TestInterval_FixedRate(t *testing.T) {
	h := newHarness(t)
	h.load(t, nd("tick", nodes.TypeInterval, map[string]any{
		"interval": 50,
		"type":     nodes.ModeFixedRate,
	}))

	time.Sleep(275 * time.Millisecond)
	assert.InDelta(t, 6, h.started.Load(), 1)
}

func TestInterval_InitialDelay(t *testing.T) {
	h := newHarness(t)
	h.load(t, nd("tick", nodes.TypeInterval, map[string]any{
		"delay":    "150ms",
		"interval": "1s",
	}))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.started.Load())
	require.Eventually(t, func() bool { return h.started.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestInterval_TeardownStopsTicks(t *testing.T) {
	h := newHarness(t)
	g := h.load(t, nd("tick", nodes.TypeInterval, map[string]any{"interval": 20}))
	require.Eventually(t, func() bool { return h.started.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.load(t)
	assert.True(t, g.Closed())
	n := h.started.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, h.started.Load())
	assert.Zero(t, h.engine.Scheduler().Pending())
}

func TestInterval_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		fields map[string]any
		field  string
	}{
		{name: "zero interval", fields: map[string]any{"interval": 0}, field: "interval"},
		{name: "negative delay", fields: map[string]any{"delay": -1}, field: "delay"},
		{name: "unknown mode", fields: map[string]any{"type": "HOURLY"}, field: "type"},
		{name: "variable interval", fields: map[string]any{"interval": ref("x")}, field: "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Load(t.Context(), &workflow.Document{Nodes: []workflow.NodeDocument{
				nd("tick", nodes.TypeInterval, tt.fields),
			}})
			var le *workflow.LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.field, le.Field)
		})
	}
}
