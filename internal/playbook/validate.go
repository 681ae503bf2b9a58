package playbook

import (
	"fmt"
	"sort"

	"github.com/paiml/probar/internal/perr"
)

// resolvedTransition unifies a StateSpec's inline `on` map and the
// Machine's explicit transitions[] list into one shape the runner
// walks, keyed by (from, event).
type resolvedTransition struct {
	ID         string
	From       string
	Event      string
	To         string
	Guards     []string
	Assertions []string
}

// plan is the validated, ready-to-run form of a Document.
type plan struct {
	doc          *Document
	transitions  map[string]map[string]resolvedTransition // from -> event -> transition
	forbidden    map[string]map[string]ForbiddenSpec      // from -> to -> spec
	eventTargets map[string]map[string]struct{}           // event -> states it's declared to reach anywhere
}

// Validate checks the machine's structural invariants:
//   - the initial state exists
//   - every transition's from/to names a declared state
//   - invariants and guards/assertions reference predicates registered
//     in known (the caller's predicate/assertion registry)
//   - declared and forbidden transitions are disjoint by (from, to)
//
// It also indexes, per event name, every state that event is declared
// to reach anywhere in the machine. The Runner uses that index to
// recognize a live event that has no declared transition out of the
// current state but would, by the same event's meaning elsewhere in
// the machine, land on a state the current state forbids reaching —
// a calculator playbook firing `OPERATOR` from `result` is exactly
// this case.
//
// It returns a plan the Runner can execute.
func Validate(doc *Document, known map[string]struct{}) (*plan, error) {
	m := doc.Machine
	if m.Initial == "" {
		return nil, validationErr("initial state not set", "")
	}
	if _, ok := m.States[m.Initial]; !ok {
		return nil, validationErr("initial state not declared among states", m.Initial)
	}

	for name, st := range m.States {
		for _, inv := range st.Invariants {
			if _, ok := known[inv]; !ok {
				return nil, validationErr(fmt.Sprintf("state %q references unknown invariant predicate", name), inv)
			}
		}
		for _, to := range st.On {
			if _, ok := m.States[to]; !ok {
				return nil, validationErr(fmt.Sprintf("state %q has an inline transition to an undeclared state", name), to)
			}
		}
	}

	transitions := make(map[string]map[string]resolvedTransition)
	eventTargets := make(map[string]map[string]struct{})
	addTransition := func(t resolvedTransition) error {
		if _, ok := m.States[t.From]; !ok {
			return validationErr("transition references undeclared from-state", t.From)
		}
		if _, ok := m.States[t.To]; !ok {
			return validationErr("transition references undeclared to-state", t.To)
		}
		for _, g := range t.Guards {
			if _, ok := known[g]; !ok {
				return validationErr("transition guard references unknown predicate", g)
			}
		}
		for _, a := range t.Assertions {
			if _, ok := known[a]; !ok {
				return validationErr("transition assertion references unknown predicate", a)
			}
		}
		if transitions[t.From] == nil {
			transitions[t.From] = make(map[string]resolvedTransition)
		}
		if _, dup := transitions[t.From][t.Event]; dup {
			return validationErr("duplicate transition for the same (state, event) pair", t.From+"/"+t.Event)
		}
		transitions[t.From][t.Event] = t

		if eventTargets[t.Event] == nil {
			eventTargets[t.Event] = make(map[string]struct{})
		}
		eventTargets[t.Event][t.To] = struct{}{}
		return nil
	}

	for name, st := range m.States {
		events := make([]string, 0, len(st.On))
		for ev := range st.On {
			events = append(events, ev)
		}
		sort.Strings(events)
		for _, ev := range events {
			if err := addTransition(resolvedTransition{From: name, Event: ev, To: st.On[ev]}); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range m.Transitions {
		if err := addTransition(resolvedTransition{
			ID: t.ID, From: t.From, Event: t.Event, To: t.To,
			Guards: t.Guards, Assertions: t.Assertions,
		}); err != nil {
			return nil, err
		}
	}

	forbidden := make(map[string]map[string]ForbiddenSpec)
	for _, f := range m.Forbidden {
		if _, ok := m.States[f.From]; !ok {
			return nil, validationErr("forbidden transition references undeclared from-state", f.From)
		}
		if _, ok := m.States[f.To]; !ok {
			return nil, validationErr("forbidden transition references undeclared to-state", f.To)
		}
		if byEvent, ok := transitions[f.From]; ok {
			for _, t := range byEvent {
				if t.To == f.To {
					return nil, validationErr(
						fmt.Sprintf("forbidden transition %s->%s collides with a declared transition", f.From, f.To),
						t.ID)
				}
			}
		}
		if forbidden[f.From] == nil {
			forbidden[f.From] = make(map[string]ForbiddenSpec)
		}
		forbidden[f.From][f.To] = f
	}

	return &plan{doc: doc, transitions: transitions, forbidden: forbidden, eventTargets: eventTargets}, nil
}

func validationErr(msg, state string) error {
	return perr.New(perr.KindValidationError, component, "validate", state, fmt.Errorf("%s", msg))
}
