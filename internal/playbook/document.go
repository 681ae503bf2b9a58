// Package playbook implements the Playbook Runner of spec.md §4.6: a
// declarative YAML state machine, its strict-disjointness validation,
// and an executor that re-evaluates invariants only after transitions.
package playbook

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/paiml/probar/internal/perr"
)

const component = "playbook"

// Document is the parsed form of the playbook file format in spec.md §6.
type Document struct {
	Version       string            `yaml:"version"`
	Name          string            `yaml:"name"`
	Machine       MachineSpec       `yaml:"machine"`
	Falsification FalsificationSpec `yaml:"falsification"`
	Presentar     PresentarSpec     `yaml:"presentar"`
}

// MachineSpec describes the state machine. Strict is a supplemented
// field (spec.md §4.6 names the soft/hard distinction for unexpected
// events but leaves how a playbook declares "strict" to the
// implementation).
type MachineSpec struct {
	Initial     string               `yaml:"initial"`
	States      map[string]StateSpec `yaml:"states"`
	Transitions []TransitionSpec     `yaml:"transitions"`
	Forbidden   []ForbiddenSpec      `yaml:"forbidden"`
	Strict      bool                 `yaml:"strict"`
}

// StateSpec is one state's body: its invariants and inline transitions.
type StateSpec struct {
	Invariants []string          `yaml:"invariants"`
	On         map[string]string `yaml:"on"`
}

// TransitionSpec is an explicit transition with guards and post-move
// assertions.
type TransitionSpec struct {
	ID         string   `yaml:"id"`
	From       string   `yaml:"from"`
	To         string   `yaml:"to"`
	Event      string   `yaml:"event"`
	Guards     []string `yaml:"guards"`
	Assertions []string `yaml:"assertions"`
}

// ForbiddenSpec names a negative-property transition.
type ForbiddenSpec struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Reason string `yaml:"reason"`
}

// FalsificationSpec is the mutation catalogue consumed by the
// Falsification Gate.
type FalsificationSpec struct {
	Mutations []MutationSpec `yaml:"mutations"`
}

// MutationSpec is one catalogued mutation.
type MutationSpec struct {
	ID              string `yaml:"id"`
	Description     string `yaml:"description"`
	Mutate          string `yaml:"mutate"`
	ExpectedFailure string `yaml:"expected_failure"`
}

// PresentarSpec is the optional binding-target declaration.
type PresentarSpec struct {
	Schema string `yaml:"schema"`
}

// Parse decodes a playbook document, rejecting unknown fields so a
// typo'd field name fails at load time rather than silently doing
// nothing (spec.md §7's ValidationError is "fatal at load time").
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, perr.New(perr.KindValidationError, component, "parse", "", err)
	}
	return &doc, nil
}

// Marshal serializes doc back to YAML, for the load→save→load
// round-trip law of spec.md §8.
func (d *Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, perr.New(perr.KindValidationError, component, "marshal", "", err)
	}
	return out, nil
}
