// Package falsify implements the Falsification Gate of spec.md §4.7:
// it runs a playbook's mutation catalogue against a target under test,
// classifies each mutation Survived or Killed, and renders a
// pass-threshold verdict.
package falsify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/playbook"
)

const component = "falsify"

// Verdict classifies one mutation's outcome. A mutation is Killed when
// applying it causes the target's playbook run to fail — proof the
// invariant/assertion it attacks is actually load-bearing. Survived
// means the run passed anyway: the property the mutation attacked
// isn't actually being checked.
type Verdict string

const (
	Killed   Verdict = "killed"
	Survived Verdict = "survived"
	Errored  Verdict = "errored"
)

// Outcome is one mutation's result.
type Outcome struct {
	Mutation playbook.MutationSpec
	Verdict  Verdict
	Err      error
}

// Target runs one complete playbook execution under a given mutation
// and reports whether it failed the way the mutation expects.
// Implementations own applying and reverting the mutation around the
// call to Run.
type Target interface {
	// Apply mutates the target per m, returning a restore func that
	// undoes the mutation. restore must be safe to call exactly once,
	// even if Apply itself failed partway through.
	Apply(ctx context.Context, m playbook.MutationSpec) (restore func(), err error)
	// Run executes one playbook pass against the (possibly mutated)
	// target and reports whether it failed, and if so how.
	Run(ctx context.Context) error
}

// Report aggregates every mutation's outcome plus the computed
// pass-threshold verdict.
type Report struct {
	Outcomes  []Outcome
	Total     int
	Killed    int
	Survived  int
	Errored   int
	KillRate  float64
	Threshold float64
	Passed    bool
}

// Gate runs a catalogue of mutations against target with bounded
// concurrency, applying and reverting each mutation around a
// panic-safe run.
type Gate struct {
	Concurrency int
	Threshold   float64 // minimum kill rate to pass, e.g. 0.8
	Logger      *zap.Logger
}

// DefaultGate returns a Gate with a conservative concurrency and the
// spec's suggested 100% kill-rate threshold (every catalogued mutation
// must be caught).
func DefaultGate(logger *zap.Logger) Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Gate{Concurrency: 4, Threshold: 1.0, Logger: logger}
}

// Run executes every mutation in catalogue against target and returns
// the aggregate Report. Mutations run independently and concurrently
// (bounded by g.Concurrency); one mutation's failure never prevents
// another from running.
func (g Gate) Run(ctx context.Context, target Target, catalogue []playbook.MutationSpec) (Report, error) {
	outcomes := make([]Outcome, len(catalogue))

	sem := make(chan struct{}, max(1, g.Concurrency))
	eg, egctx := errgroup.WithContext(ctx)
	for i, m := range catalogue {
		i, m := i, m
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = g.runOne(egctx, target, m)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Report{}, perr.New(perr.KindValidationError, component, "run", "", err)
	}

	return summarize(outcomes, g.Threshold), nil
}

// runOne applies m, runs target once, and reverts m — guaranteed even
// if the run panics, so one mutation's crash never poisons the
// restoration of its own artifact or leaves the target mutated for the
// next one.
func (g Gate) runOne(ctx context.Context, target Target, m playbook.MutationSpec) (out Outcome) {
	out = Outcome{Mutation: m}

	restore, err := target.Apply(ctx, m)
	if err != nil {
		if restore != nil {
			restore()
		}
		out.Verdict = Errored
		out.Err = err
		return out
	}
	defer func() {
		if restore != nil {
			restore()
		}
		if r := recover(); r != nil {
			out.Verdict = Errored
			out.Err = fmt.Errorf("mutation %s panicked: %v", m.ID, r)
			g.Logger.Error("mutation run panicked", zap.String("mutation", m.ID), zap.Any("panic", r))
		}
	}()

	runErr := target.Run(ctx)
	switch {
	case runErr == nil:
		out.Verdict = Survived
		g.Logger.Warn("mutation survived", zap.String("mutation", m.ID), zap.String("expected_failure", m.ExpectedFailure))
	default:
		out.Verdict = Killed
		out.Err = runErr
		g.Logger.Debug("mutation killed", zap.String("mutation", m.ID), zap.Error(runErr))
	}
	return out
}

func summarize(outcomes []Outcome, threshold float64) Report {
	r := Report{Outcomes: outcomes, Total: len(outcomes), Threshold: threshold}
	for _, o := range outcomes {
		switch o.Verdict {
		case Killed:
			r.Killed++
		case Survived:
			r.Survived++
		case Errored:
			r.Errored++
		}
	}
	if r.Total > 0 {
		r.KillRate = float64(r.Killed) / float64(r.Total)
	}
	r.Passed = r.Errored == 0 && r.KillRate >= threshold
	return r
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
