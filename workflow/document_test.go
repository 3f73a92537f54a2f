package workflow

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const sampleYAML = `
name: greeter
description: greets players
nodes:
  - id: join
    type: trigger
    fields:
      mode: B
    outputs: [say, ""]
    position: {x: 1, y: 2}
  - id: say
    type: record
    fields:
      input:
        variable: event
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "greeter", doc.Name)
	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, []string{"say", ""}, doc.Nodes[0].Outputs)
	assert.Equal(t, &Position{X: 1, Y: 2}, doc.Nodes[0].Position)

	n, ok := doc.Node("say")
	require.True(t, ok)
	assert.Equal(t, variable("event"), n.Fields["input"])

	data, err := doc.ToJSON()
	require.NoError(t, err)
	again, err := ParseDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Nodes[0].Outputs, again.Nodes[0].Outputs)
	assert.Equal(t, "B", again.Nodes[0].Fields["mode"])
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: "   "},
		{name: "bad json", data: `{"nodes": [`},
		{name: "unknown json field", data: `{"nodes": [], "extra": true}`},
		{name: "bad yaml", data: "nodes: [:"},
		{name: "missing id", data: `{"nodes": [{"type": "log"}]}`},
		{name: "missing type", data: `{"nodes": [{"id": "a"}]}`},
		{name: "duplicate id", data: `{"nodes": [{"id": "a", "type": "log"}, {"id": "a", "type": "log"}]}`},
		{name: "dangling output", data: `{"nodes": [{"id": "a", "type": "log", "outputs": ["b"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.data))
			var le *LoadError
			assert.ErrorAs(t, err, &le)
		})
	}
}

func TestDocument_SaveFile(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleYAML))
	require.NoError(t, err)

	for _, name := range []string{"flow.json", "flow.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, doc.SaveFile(path))
			got, err := LoadDocumentFile(path)
			require.NoError(t, err)
			assert.Equal(t, doc.Name, got.Name)
			assert.Len(t, got.Nodes, 2)
		})
	}

	_, err = LoadDocumentFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// A generated graph survives serialize → parse → load → serialize
// unchanged, in both encodings.
func TestDocument_SubMillisecondDurationSurvivesRoundTrip(t *testing.T) {
	reg := testRegistry(newRecorder())
	e := NewEngine(Options{Registry: reg})
	defer e.Close()

	doc := &Document{Nodes: []NodeDocument{
		{ID: "w", Type: "delay", Fields: map[string]any{"for": "1500us"}},
	}}
	first, err := buildGraph(e.rt, reg, doc)
	require.NoError(t, err)
	assert.Equal(t, "1.5ms", first.Document().Nodes[0].Fields["for"])

	data, err := first.Document().ToJSON()
	require.NoError(t, err)
	parsed, err := ParseDocument(data)
	require.NoError(t, err)
	again, err := buildGraph(e.rt, reg, parsed)
	require.NoError(t, err)
	assert.Equal(t, first.Document(), again.Document())
}

func TestDocument_RoundTripProperty(t *testing.T) {
	reg := testRegistry(newRecorder())
	e := NewEngine(Options{Registry: reg})
	defer e.Close()

	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 8).Draw(rt, "count")
		ids := make([]string, count)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}

		doc := &Document{Name: rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "name")}
		for i, id := range ids {
			nd := NodeDocument{ID: id}
			switch rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("kind_%d", i)) {
			case 0:
				nd.Type = "trigger"
				nd.Fields = map[string]any{"mode": rapid.SampledFrom([]string{"A", "B"}).Draw(rt, "mode")}
			case 1:
				nd.Type = "setvar"
				var value any = rapid.Int64Range(-1000, 1000).Draw(rt, "value")
				if rapid.Bool().Draw(rt, "double") {
					value = rapid.Float64Range(-1e6, 1e6).Draw(rt, "double_value")
				}
				nd.Fields = map[string]any{
					"name":  rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "var"),
					"value": value,
				}
			case 2:
				nd.Type = "record"
				if rapid.Bool().Draw(rt, "bound") {
					nd.Fields = map[string]any{"input": variable(rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "ref"))}
				}
			case 3:
				nd.Type = "delay"
				if rapid.Bool().Draw(rt, "as_string") {
					d := time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(rt, "ns"))
					nd.Fields = map[string]any{"for": d.String()}
				} else {
					nd.Fields = map[string]any{"for": rapid.Int64Range(0, 60_000).Draw(rt, "ms")}
				}
			}
			outs := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("outs_%d", i))
			for j := 0; j < outs; j++ {
				target := ""
				if rapid.Bool().Draw(rt, "connected") {
					target = rapid.SampledFrom(ids).Draw(rt, "target")
				}
				nd.Outputs = append(nd.Outputs, target)
			}
			doc.Nodes = append(doc.Nodes, nd)
		}

		require.NoError(rt, e.Validate(doc))

		for _, encode := range []func(*Document) ([]byte, error){(*Document).ToJSON, (*Document).ToYAML} {
			data, err := encode(doc)
			require.NoError(rt, err)
			parsed, err := ParseDocument(data)
			require.NoError(rt, err)

			g, err := buildGraph(e.rt, reg, parsed)
			require.NoError(rt, err)
			want, err := buildGraph(e.rt, reg, doc)
			require.NoError(rt, err)
			assert.Equal(rt, want.Document(), g.Document())
		}
	})
}
