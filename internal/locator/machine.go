package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/paiml/probar/internal/perr"
)

// State names the locator state machine's position, for diagnostics and
// for the Open Question decision on re-resolution (§13 of SPEC_FULL.md).
type State string

const (
	StateSeeking          State = "seeking"
	StateCandidate        State = "candidate"
	StateFiltered         State = "filtered"
	StateProbing          State = "probing"
	StateActionable       State = "actionable"
	StateUnstable         State = "unstable"
	StateTimedOut         State = "timed_out"
	StateStrictViolation  State = "strict_violation"
)

// WaitPolicy parameterizes a resolution run.
type WaitPolicy struct {
	TimeoutTotal time.Duration
	PollInterval time.Duration
	Predicates   []string // e.g. "visible", "enabled", "stable"
}

// DefaultPolicy matches the teacher's conservative interactive-wait
// defaults: generous enough for real page loads, tight enough that a
// genuinely stuck element fails fast in CI.
func DefaultPolicy() WaitPolicy {
	return WaitPolicy{
		TimeoutTotal: 5 * time.Second,
		PollInterval: 50 * time.Millisecond,
		Predicates:   []string{"visible", "enabled", "stable"},
	}
}

// Resolution is the terminal outcome of a resolve run.
type Resolution struct {
	State     State
	Handle    Handle
	At        time.Time
	Candidate int    // last observed candidate count
	Predicate string // last unsatisfied predicate, if any
}

// Resolve runs the state machine of spec.md §4.3 for d against ex under
// policy, blocking until Actionable, TimedOut, StrictViolation, or ctx is
// done.
func Resolve(ctx context.Context, d Descriptor, ex Executor, policy WaitPolicy) (Resolution, error) {
	deadline := time.Now().Add(policy.TimeoutTotal)

	var lastCount int
	var lastPredicate string

	for {
		if ctx.Err() != nil {
			return Resolution{}, perr.New(perr.KindTimeout, component, "resolve", descriptorState(d, lastCount, lastPredicate), ctx.Err())
		}

		candidates, err := resolveCandidates(ctx, d, ex, nil)
		if err != nil {
			return Resolution{}, err
		}
		lastCount = len(candidates)

		if len(candidates) == 0 {
			if pastDeadline(deadline, policy) {
				return Resolution{State: StateTimedOut, Candidate: 0}, perr.New(perr.KindTimeout, component, "resolve", descriptorState(d, 0, lastPredicate), nil)
			}
			sleep(ctx, policy.PollInterval)
			continue
		}

		if d.strict && len(candidates) > 1 {
			return Resolution{State: StateStrictViolation, Candidate: len(candidates)},
				perr.New(perr.KindStrictViolation, component, "resolve", descriptorState(d, len(candidates), ""), nil)
		}

		target := candidates[0]

		ok, predicate, rect1, err := probe(ctx, ex, target, policy)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			// geometry stability: a second sample one poll_interval apart
			// must match, per spec.md §4.3's Probing→Actionable transition.
			if !sleep(ctx, policy.PollInterval) {
				if pastDeadline(deadline, policy) {
					return Resolution{State: StateTimedOut, Candidate: len(candidates), Predicate: "stable"}, perr.New(perr.KindTimeout, component, "resolve", descriptorState(d, len(candidates), "stable"), nil)
				}
			}
			stillResolves, err := ex.Resolves(ctx, target)
			if err != nil {
				return Resolution{}, err
			}
			if !stillResolves {
				continue // detached mid-probe: restart from Seeking, deadline unchanged
			}
			rect2, err := ex.BoundingRect(ctx, target)
			if err != nil {
				return Resolution{}, err
			}
			if rect1.Equal(rect2) {
				return Resolution{State: StateActionable, Handle: target, At: time.Now(), Candidate: len(candidates)}, nil
			}
			lastPredicate = "stable"
			// unstable: continue polling until deadline or stability achieved.
		} else {
			lastPredicate = predicate
		}

		if pastDeadline(deadline, policy) {
			return Resolution{State: StateTimedOut, Candidate: len(candidates), Predicate: lastPredicate},
				perr.New(perr.KindTimeout, component, "resolve", descriptorState(d, len(candidates), lastPredicate), nil)
		}
		if !sleep(ctx, policy.PollInterval) {
			continue
		}
	}
}

// probe evaluates every predicate in the policy against h (Probing
// state); on success it also returns the first geometry sample so the
// caller can take the stability-confirming second sample after one more
// poll_interval.
func probe(ctx context.Context, ex Executor, h Handle, policy WaitPolicy) (ok bool, failedPredicate string, rect Rect, err error) {
	resolves, err := ex.Resolves(ctx, h)
	if err != nil {
		return false, "", Rect{}, err
	}
	if !resolves {
		return false, "detached", Rect{}, nil
	}
	for _, pred := range policy.Predicates {
		if pred == "stable" {
			continue // handled by the caller's two-sample comparison
		}
		satisfied, err := ex.Predicate(ctx, h, pred)
		if err != nil {
			return false, "", Rect{}, err
		}
		if !satisfied {
			return false, pred, Rect{}, nil
		}
	}
	rect, err = ex.BoundingRect(ctx, h)
	if err != nil {
		return false, "", Rect{}, err
	}
	return true, "", rect, nil
}

func pastDeadline(deadline time.Time, policy WaitPolicy) bool {
	if policy.TimeoutTotal == 0 {
		return true // "timeout=0 attempts exactly one poll" (spec.md §8)
	}
	return time.Now().After(deadline)
}

// sleep waits for d or ctx cancellation, returning false if ctx ended
// first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func descriptorState(d Descriptor, count int, predicate string) string {
	return fmt.Sprintf("kind=%s value=%q candidates=%d predicate=%q", d.kind, d.value, count, predicate)
}
