package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PromptKind is the resolved shape of a prompt spec.
type PromptKind int

const (
	// PromptBare has a name only: the answer comes from the oracle or the
	// user at resolution time.
	PromptBare PromptKind = iota
	// PromptScripted carries an explicit answer value.
	PromptScripted
	// PromptSkipped accepts the default silently with an empty answer.
	PromptSkipped
	// PromptHidden expects no echo of its answer in subsequent output.
	PromptHidden
)

// PromptSpec is one entry of a job's interaction.prompts list. In the file
// it is either a bare string (prompt name only) or a mapping with optional
// value/skip/hidden fields; the variant is resolved once at load time.
type PromptSpec struct {
	Name   string  `yaml:"name"`
	Value  *string `yaml:"value,omitempty"`
	SkipIt bool    `yaml:"skip,omitempty"`
	Hidden bool    `yaml:"hidden,omitempty"`
}

// Kind classifies the prompt spec. Hidden wins over Scripted so dispatchers treat
// the echo expectation correctly; a hidden spec may still carry a value.
func (p *PromptSpec) Kind() PromptKind {
	switch {
	case p.Hidden:
		return PromptHidden
	case p.SkipIt:
		return PromptSkipped
	case p.Value != nil:
		return PromptScripted
	default:
		return PromptBare
	}
}

// ScriptedValue returns the explicit answer and whether one is present.
func (p *PromptSpec) ScriptedValue() (string, bool) {
	if p.Value == nil {
		return "", false
	}
	return *p.Value, true
}

// UnmarshalYAML accepts both the bare-string and the mapping form.
func (p *PromptSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		*p = PromptSpec{Name: name}
		return nil
	case yaml.MappingNode:
		type plain PromptSpec
		var body plain
		if err := node.Decode(&body); err != nil {
			return err
		}
		*p = PromptSpec(body)
		return nil
	default:
		return fmt.Errorf("prompt must be a string or a mapping, got yaml kind %d", node.Kind)
	}
}

// MarshalYAML emits the most compact form: a bare string for name-only
// prompts, a mapping otherwise.
func (p PromptSpec) MarshalYAML() (any, error) {
	if p.Kind() == PromptBare {
		return p.Name, nil
	}
	type plain PromptSpec
	return plain(p), nil
}
