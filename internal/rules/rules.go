package rules

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/vsignal/vsm/internal/signal"
)

// Document is a parsed rule file: a list of top-level rule items.
type Document struct {
	Items []Item
}

// Item is one node of the rule document. Exactly one of the shapes is
// populated per item:
//
//   - condition items carry Condition (and optionally Start/Stop, Emit,
//     and nested Parallel/Sequence blocks)
//   - wrapper items carry only Parallel or Sequence
//   - bare emit items carry only Emit
type Item struct {
	Condition string  `yaml:"condition"`
	Start     *int64  `yaml:"start"`
	Stop      *int64  `yaml:"stop"`
	Emit      *Emit   `yaml:"emit"`
	Parallel  []Item  `yaml:"parallel"`
	Sequence  []Item  `yaml:"sequence"`
}

// Emit describes a signal emission: the target signal, the value to emit,
// and an optional delay in milliseconds.
type Emit struct {
	Signal string
	Value  signal.Value
	Delay  int64
}

// UnmarshalYAML decodes an emit map, converting the value scalar into a
// typed signal value according to its YAML tag.
func (e *Emit) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Signal string    `yaml:"signal"`
		Value  yaml.Node `yaml:"value"`
		Delay  int64     `yaml:"delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Signal == "" {
		return fmt.Errorf("line %d: emit requires a signal", node.Line)
	}
	if raw.Value.Kind == 0 {
		return fmt.Errorf("line %d: emit requires a value", node.Line)
	}
	if raw.Delay < 0 {
		return fmt.Errorf("line %d: emit delay must be non-negative", node.Line)
	}
	v, err := decodeScalar(&raw.Value)
	if err != nil {
		return err
	}
	e.Signal = NormalizeName(raw.Signal)
	e.Value = v
	e.Delay = raw.Delay
	return nil
}

func decodeScalar(node *yaml.Node) (signal.Value, error) {
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return signal.Undefined(), err
		}
		return signal.Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return signal.Undefined(), err
		}
		return signal.Int(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return signal.Undefined(), err
		}
		return signal.Float(f), nil
	case "!!str":
		return signal.String(node.Value), nil
	default:
		return signal.Undefined(), fmt.Errorf("line %d: unsupported emit value %q", node.Line, node.Value)
	}
}

// Load reads and parses a rule file. The document is validated against the
// embedded schema before decoding, so malformed files fail with positions.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes rule document bytes. The path is used only
// for error reporting.
func Parse(path string, data []byte) (*Document, error) {
	if err := validateDocument(path, data); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var items []Item
	if err := dec.Decode(&items); err != nil {
		return nil, &LoadError{Path: path, Msg: err.Error()}
	}
	return &Document{Items: items}, nil
}

// LoadError is a fatal rule-loading error with a file location when one
// is known.
type LoadError struct {
	Path string
	Line int
	Col  int
	Msg  string
}

func (e *LoadError) Error() string {
	switch {
	case e.Line > 0 && e.Col > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Col, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Path, e.Msg)
	}
}

// NormalizeName returns the NFC form of a signal name. Every ingress point
// (rule compiler, signal maps, transports) normalizes names so lookups are
// insensitive to Unicode composition differences between sources.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}
