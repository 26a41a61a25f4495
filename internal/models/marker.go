package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarkerType is the class encoded in a marker id prefix.
type MarkerType string

const (
	MarkerTypeAtomic   MarkerType = "A"
	MarkerTypeSignal   MarkerType = "S"
	MarkerTypeComposed MarkerType = "C"
	MarkerTypeMeta     MarkerType = "MM"
)

// Id prefixes queried by the two scan phases.
var (
	InitialPrefixes    = []string{"A_", "S_"}
	ContextualPrefixes = []string{"C_", "MM_"}
)

// TypeOf derives the marker type from an id: the text before the first underscore.
func TypeOf(id string) MarkerType {
	prefix, _, _ := strings.Cut(id, "_")
	return MarkerType(prefix)
}

// StringList decodes either a scalar or a sequence of strings.
type StringList []string

// UnmarshalYAML accepts `pattern: foo` as well as `pattern: [foo, bar]`.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("expected string or list of strings at line %d", node.Line)
	}
}

// UnmarshalJSON accepts a JSON string or array of strings.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = items
	return nil
}

// Frame describes what a marker means. It is carried through results but never evaluated,
// apart from Signal cues which the initial scan matches literally.
type Frame struct {
	Signal     StringList `yaml:"signal" json:"signal,omitempty"`
	Concept    string     `yaml:"concept" json:"concept,omitempty"`
	Pragmatics string     `yaml:"pragmatics" json:"pragmatics,omitempty"`
	Narrative  string     `yaml:"narrative" json:"narrative,omitempty"`
}

// Marker is an immutable marker definition. Compile must be called once before the
// marker is used for pattern matching; catalogs do this when a snapshot is built.
type Marker struct {
	ID          string            `yaml:"id" json:"id"`
	SchemaID    string            `yaml:"schema_id,omitempty" json:"schema_id,omitempty"`
	Frame       Frame             `yaml:"frame" json:"frame"`
	Examples    []string          `yaml:"examples" json:"examples"`
	Pattern     StringList        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	ComposedOf  []string          `yaml:"composed_of,omitempty" json:"composed_of,omitempty"`
	DetectClass string            `yaml:"detect_class,omitempty" json:"detect_class,omitempty"`
	Activation  *ActivationConfig `yaml:"activation,omitempty" json:"activation,omitempty"`
	Scoring     *ScoringConfig    `yaml:"scoring,omitempty" json:"scoring,omitempty"`
	Window      *WindowConfig     `yaml:"window,omitempty" json:"window,omitempty"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`

	patterns []*regexp.Regexp
}

// Type returns the id-derived marker type.
func (m *Marker) Type() MarkerType {
	return TypeOf(m.ID)
}

// IsComposite reports whether the marker activates from other markers rather than text.
func (m *Marker) IsComposite() bool {
	return len(m.ComposedOf) > 0
}

// Validate checks the structural invariants of a definition.
func (m *Marker) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("marker id is required")
	}
	if len(m.Examples) == 0 {
		return fmt.Errorf("marker %s: at least one example is required", m.ID)
	}
	switch m.Type() {
	case MarkerTypeAtomic, MarkerTypeSignal:
		if m.IsComposite() {
			return fmt.Errorf("marker %s: atomic and signal markers cannot declare composed_of", m.ID)
		}
	case MarkerTypeComposed, MarkerTypeMeta:
		if m.Activation != nil && m.Activation.Type != "" && !m.IsComposite() {
			return fmt.Errorf("marker %s: activation rule %s requires composed_of", m.ID, m.Activation.Type)
		}
	default:
		return fmt.Errorf("marker %s: unknown id prefix %q", m.ID, m.Type())
	}
	return nil
}

// Compile validates the marker and compiles its patterns case-insensitively.
func (m *Marker) Compile() error {
	if err := m.Validate(); err != nil {
		return err
	}
	compiled := make([]*regexp.Regexp, 0, len(m.Pattern))
	for _, expr := range m.Pattern {
		if expr == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return fmt.Errorf("marker %s: compile pattern %q: %w", m.ID, expr, err)
		}
		compiled = append(compiled, re)
	}
	m.patterns = compiled
	return nil
}

// Patterns returns the compiled patterns. Nil until Compile succeeded.
func (m *Marker) Patterns() []*regexp.Regexp {
	return m.patterns
}

// WithActivation returns a shallow copy of the marker carrying a different activation rule.
func (m *Marker) WithActivation(rule *ActivationConfig) *Marker {
	clone := *m
	clone.Activation = rule
	return &clone
}
