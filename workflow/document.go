package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the persisted form of a graph.
type Document struct {
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDocument `json:"nodes" yaml:"nodes"`
}

// NodeDocument is one node of a Document. Field values are either plain
// literals or {"variable": "<name>"} references. Outputs are ordered node
// ids; an empty string marks an unconnected slot.
type NodeDocument struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Fields   map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	Outputs  []string       `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Position *Position      `json:"position,omitempty" yaml:"position,omitempty"`
}

// Position is editor layout metadata, carried through unchanged.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ParseDocument decodes JSON or YAML. JSON is detected by a leading '{'.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &LoadError{Reason: "empty document"}
	}
	var doc Document
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, &LoadError{Reason: "decode JSON", Err: err}
		}
	} else if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, &LoadError{Reason: "decode YAML", Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the structure of the document without consulting the
// node registry.
func (d *Document) Validate() error {
	ids := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return &LoadError{Reason: "node id is required"}
		}
		if ids[n.ID] {
			return &LoadError{Node: n.ID, Reason: "duplicate node id"}
		}
		ids[n.ID] = true
		if n.Type == "" {
			return &LoadError{Node: n.ID, Reason: "node type is required"}
		}
	}
	for _, n := range d.Nodes {
		for i, out := range n.Outputs {
			if out != "" && !ids[out] {
				return &LoadError{Node: n.ID, Reason: fmt.Sprintf("output %d references unknown node %q", i, out)}
			}
		}
	}
	return nil
}

// Node returns the document node with the given id.
func (d *Document) Node(id string) (*NodeDocument, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// ToJSON converts a Document to indented JSON.
func (d *Document) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document to JSON: %w", err)
	}
	return data, nil
}

// ToYAML converts a Document to YAML.
func (d *Document) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document to YAML: %w", err)
	}
	return data, nil
}

// LoadDocumentFile reads a JSON or YAML document from disk.
func LoadDocumentFile(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read workflow document: %w", err)
	}
	return ParseDocument(data)
}

// SaveFile writes the document, choosing YAML for .yaml/.yml files.
func (d *Document) SaveFile(filename string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = d.ToYAML()
	default:
		data, err = d.ToJSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write workflow document: %w", err)
	}
	return nil
}
