package playbook

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/paiml/probar/internal/perr"
)

// Predicate evaluates a single named invariant/guard/assertion against
// whatever the playbook is driving (a browser.Agent, a sim.Stepper, ...).
type Predicate func(ctx context.Context) (bool, error)

// Event is one externally observed occurrence the runner matches against
// the current state's transitions.
type Event struct {
	Name   string
	Params map[string]interface{}
}

// EventSource yields the next event to react to. Implementations block
// until an event is available or ctx is done; a source with no further
// events returns context.Canceled.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
}

// Runner drives one playbook execution: enter the initial state,
// evaluate its invariants, then repeatedly await an event, match it to
// a transition (forbidden transitions abort immediately), run the
// transition's assertions, move state, and re-evaluate invariants —
// never mid-transition.
type Runner struct {
	plan       *plan
	predicates map[string]Predicate
	source     EventSource
	logger     *zap.Logger
	state      string
	history    []string
}

// NewRunner constructs a Runner for a validated plan. predicates must
// contain an entry for every invariant/guard/assertion name Validate
// accepted (Validate is normally called with the same map's key set).
func NewRunner(p *plan, predicates map[string]Predicate, source EventSource, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{plan: p, predicates: predicates, source: source, logger: logger}
}

// State returns the runner's current state name.
func (r *Runner) State() string { return r.state }

// History returns the sequence of states entered so far, including the
// initial state.
func (r *Runner) History() []string { return append([]string(nil), r.history...) }

// Run executes the playbook until ctx is done, the event source is
// exhausted, or a violation aborts the run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.enter(ctx, r.plan.doc.Machine.Initial); err != nil {
		return err
	}
	for {
		ev, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := r.handle(ctx, ev); err != nil {
			return err
		}
	}
}

// Step processes exactly one event from source, for callers that want
// to drive the machine manually (tests, interactive playback).
func (r *Runner) Step(ctx context.Context) error {
	if r.state == "" {
		if err := r.enter(ctx, r.plan.doc.Machine.Initial); err != nil {
			return err
		}
	}
	ev, err := r.source.Next(ctx)
	if err != nil {
		return err
	}
	return r.handle(ctx, ev)
}

func (r *Runner) handle(ctx context.Context, ev Event) error {
	t, ok := r.plan.transitions[r.state][ev.Name]
	if !ok {
		if err := r.forbiddenViaEvent(ev); err != nil {
			return err
		}
		return r.unexpectedEvent(ev)
	}

	for _, g := range t.Guards {
		ok, err := r.eval(ctx, g)
		if err != nil {
			return err
		}
		if !ok {
			return r.unexpectedEvent(ev)
		}
	}

	for _, a := range t.Assertions {
		ok, err := r.eval(ctx, a)
		if err != nil {
			return err
		}
		if !ok {
			return &perr.InvariantViolation{State: r.state, Predicate: a}
		}
	}

	r.logger.Debug("transition",
		zap.String("from", r.state), zap.String("event", ev.Name), zap.String("to", t.To), zap.String("id", t.ID))
	return r.enterVia(ctx, t.To, ev.Name)
}

// enter moves into the initial state (no preceding event).
func (r *Runner) enter(ctx context.Context, name string) error {
	return r.enterVia(ctx, name, "")
}

// enterVia moves into state name and evaluates its invariants once,
// after the move has fully completed — invariants are never checked
// mid-transition. Validate already rejects playbooks where a declared
// transition collides with a forbidden (from, to) pair, but enterVia
// still checks at runtime: a falsification mutation can route the
// machine into a forbidden destination without going back through
// Validate, and that must be caught the moment it happens.
func (r *Runner) enterVia(ctx context.Context, name, via string) error {
	if r.state != "" {
		if toSpec, ok := r.plan.forbidden[r.state]; ok {
			if _, hit := toSpec[name]; hit {
				return &perr.ForbiddenTransition{From: r.state, Via: via, To: name}
			}
		}
	}
	r.state = name
	r.history = append(r.history, name)
	st := r.plan.doc.Machine.States[name]
	for _, inv := range st.Invariants {
		ok, err := r.eval(ctx, inv)
		if err != nil {
			return err
		}
		if !ok {
			return &perr.InvariantViolation{State: name, Predicate: inv}
		}
	}
	return nil
}

// forbiddenViaEvent catches the case where ev has no declared
// transition out of the current state, but the same event name is
// declared elsewhere in the machine to reach a state the current state
// forbids reaching. That makes ev a live attempt at a forbidden
// transition, not merely an unexpected one, even though no transition
// for (current state, ev) was ever declared.
func (r *Runner) forbiddenViaEvent(ev Event) error {
	toSpecs, ok := r.plan.forbidden[r.state]
	if !ok {
		return nil
	}
	targets := r.plan.eventTargets[ev.Name]
	if len(targets) == 0 {
		return nil
	}

	tos := make([]string, 0, len(toSpecs))
	for to := range toSpecs {
		tos = append(tos, to)
	}
	sort.Strings(tos)
	for _, to := range tos {
		if _, reachable := targets[to]; reachable {
			return &perr.ForbiddenTransition{From: r.state, Via: ev.Name, To: to}
		}
	}
	return nil
}

func (r *Runner) eval(ctx context.Context, name string) (bool, error) {
	p, ok := r.predicates[name]
	if !ok {
		return false, perr.New(perr.KindValidationError, component, "eval", name, nil)
	}
	return p(ctx)
}

// unexpectedEvent classifies an event with no matching transition:
// soft (logged, run continues) unless the playbook declares
// machine.strict, in which case it aborts the run.
func (r *Runner) unexpectedEvent(ev Event) error {
	if r.plan.doc.Machine.Strict {
		return perr.New(perr.KindUnexpectedEvent, component, "handle", ev.Name, nil)
	}
	r.logger.Warn("unexpected event ignored", zap.String("state", r.state), zap.String("event", ev.Name))
	return nil
}
