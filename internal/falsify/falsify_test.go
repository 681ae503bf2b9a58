package falsify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paiml/probar/internal/falsify"
	"github.com/paiml/probar/internal/playbook"
)

// scriptedTarget fails Run whenever the currently applied mutation's ID
// is in killedBy; otherwise it reports success (the mutation survives).
type scriptedTarget struct {
	mu       sync.Mutex
	killedBy map[string]bool
	applied  map[string]bool
	panics   map[string]bool
}

func (s *scriptedTarget) Apply(ctx context.Context, m playbook.MutationSpec) (func(), error) {
	s.mu.Lock()
	s.applied[m.ID] = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.applied, m.ID)
		s.mu.Unlock()
	}, nil
}

func (s *scriptedTarget) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.applied {
		if s.panics[id] {
			panic("synthetic panic for " + id)
		}
		if s.killedBy[id] {
			return errors.New("invariant violated under mutation " + id)
		}
	}
	return nil
}

func TestGateClassifiesKilledAndSurvivedMutations(t *testing.T) {
	target := &scriptedTarget{
		killedBy: map[string]bool{"m1": true},
		applied:  map[string]bool{},
		panics:   map[string]bool{},
	}
	catalogue := []playbook.MutationSpec{
		{ID: "m1", Description: "flip a guard", ExpectedFailure: "invariant_violation"},
		{ID: "m2", Description: "widen a range", ExpectedFailure: "invariant_violation"},
	}

	gate := falsify.DefaultGate(nil)
	gate.Concurrency = 1 // deterministic ordering for the assertions below
	report, err := gate.Run(context.Background(), target, catalogue)
	require.NoError(t, err)

	require.Equal(t, 2, report.Total)
	require.Equal(t, 1, report.Killed)
	require.Equal(t, 1, report.Survived)
	require.Equal(t, 0.5, report.KillRate)
	require.False(t, report.Passed) // threshold defaults to 1.0
}

func TestGatePassesWhenEveryMutationIsKilled(t *testing.T) {
	target := &scriptedTarget{
		killedBy: map[string]bool{"m1": true, "m2": true},
		applied:  map[string]bool{},
		panics:   map[string]bool{},
	}
	catalogue := []playbook.MutationSpec{{ID: "m1"}, {ID: "m2"}}

	gate := falsify.DefaultGate(nil)
	report, err := gate.Run(context.Background(), target, catalogue)
	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Equal(t, 1.0, report.KillRate)
}

func TestGateRevertsMutationEvenWhenRunPanics(t *testing.T) {
	target := &scriptedTarget{
		killedBy: map[string]bool{},
		applied:  map[string]bool{},
		panics:   map[string]bool{"m1": true},
	}
	catalogue := []playbook.MutationSpec{{ID: "m1"}}

	gate := falsify.DefaultGate(nil)
	report, err := gate.Run(context.Background(), target, catalogue)
	require.NoError(t, err)
	require.Equal(t, falsify.Errored, report.Outcomes[0].Verdict)

	target.mu.Lock()
	defer target.mu.Unlock()
	require.Empty(t, target.applied, "mutation must be reverted even though Run panicked")
}

func TestGateReportsApplyFailureAsErrored(t *testing.T) {
	target := &failingApplyTarget{}
	catalogue := []playbook.MutationSpec{{ID: "m1"}}

	gate := falsify.DefaultGate(nil)
	report, err := gate.Run(context.Background(), target, catalogue)
	require.NoError(t, err)
	require.Equal(t, falsify.Errored, report.Outcomes[0].Verdict)
	require.False(t, report.Passed)
}

type failingApplyTarget struct{}

func (failingApplyTarget) Apply(ctx context.Context, m playbook.MutationSpec) (func(), error) {
	return nil, errors.New("cannot apply mutation")
}
func (failingApplyTarget) Run(ctx context.Context) error { return nil }
