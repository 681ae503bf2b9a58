package locator

import "context"

// Handle is an opaque reference to a resolved element, scoped to the
// document or simulation generation it was queried in. A prior
// navigation commit or simulation reset invalidates every outstanding
// Handle (spec.md §4.2's "all element handles ... marked detached").
type Handle struct {
	ID string
}

// Rect is an axis-aligned bounding rectangle used for geometry-stability
// sampling in the Probing state.
type Rect struct {
	X, Y, Width, Height float64
}

// Equal reports whether r and o describe the identical rectangle,
// required for two consecutive geometry samples to count as stable.
func (r Rect) Equal(o Rect) bool {
	return r.X == o.X && r.Y == o.Y && r.Width == o.Width && r.Height == o.Height
}

// Executor performs the atomic operations the locator state machine
// needs: querying, detachment checks, predicate evaluation, geometry,
// and text extraction. The Page Agent implements this over the Session
// Transport; the Simulation Engine implements it over WASM entity state
// for GameEntity descriptors.
type Executor interface {
	// Query executes one atomic query for kind/value, optionally scoped
	// to an already-resolved element (has-descendant filters, composite
	// descriptors). Results are in document order.
	Query(ctx context.Context, kind Kind, value string, scope *Handle) ([]Handle, error)

	// Resolves reports whether h still refers to a live element.
	Resolves(ctx context.Context, h Handle) (bool, error)

	// Predicate evaluates a named policy predicate (e.g. "visible",
	// "enabled", "editable") against h.
	Predicate(ctx context.Context, h Handle, name string) (bool, error)

	// BoundingRect returns h's current geometry, for stability sampling.
	BoundingRect(ctx context.Context, h Handle) (Rect, error)

	// Text returns h's text content, for HasText filters and assertions.
	Text(ctx context.Context, h Handle) (string, error)
}

// Candidates runs the Seeking→Candidate→Filtered portion of the state
// machine once (no Probing/Actionable, no polling) and returns the
// surviving handles in document order. The Assertion Layer uses this to
// locate an element without forcing the locator's own Actionable
// predicates (e.g. "visible") onto assertions that target hidden or
// disabled elements.
func Candidates(ctx context.Context, d Descriptor, ex Executor) ([]Handle, error) {
	return resolveCandidates(ctx, d, ex, nil)
}

// resolveCandidates runs the Seeking→Candidate→Filtered portion of the
// machine (without Probing/Actionable) for descriptor d, optionally
// scoped, and is reused both by top-level resolution and by composite
// (and/or/has-descendant) evaluation.
func resolveCandidates(ctx context.Context, d Descriptor, ex Executor, scope *Handle) ([]Handle, error) {
	if d.op != opNone {
		left, err := resolveCandidates(ctx, *d.left, ex, scope)
		if err != nil {
			return nil, err
		}
		right, err := resolveCandidates(ctx, *d.right, ex, scope)
		if err != nil {
			return nil, err
		}
		switch d.op {
		case opAnd:
			return intersectByIdentity(left, right), nil
		case opOr:
			return unionByIdentity(left, right), nil
		}
	}

	candidates, err := ex.Query(ctx, d.kind, d.value, scope)
	if err != nil {
		return nil, err
	}
	for _, f := range d.filters {
		candidates, err = f.apply(ctx, candidates, ex)
		if err != nil {
			return nil, err
		}
	}
	if d.pos != nil {
		candidates = applyPosition(candidates, *d.pos)
	}
	return candidates, nil
}

func intersectByIdentity(a, b []Handle) []Handle {
	set := make(map[string]struct{}, len(b))
	for _, h := range b {
		set[h.ID] = struct{}{}
	}
	out := make([]Handle, 0, len(a))
	for _, h := range a {
		if _, ok := set[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

func unionByIdentity(a, b []Handle) []Handle {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]Handle, 0, len(a)+len(b))
	for _, h := range append(append([]Handle{}, a...), b...) {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}

func applyPosition(candidates []Handle, p position) []Handle {
	if len(candidates) == 0 {
		return candidates
	}
	switch {
	case p.first:
		return candidates[:1]
	case p.last:
		return candidates[len(candidates)-1:]
	case p.nth >= 0 && p.nth < len(candidates):
		return candidates[p.nth : p.nth+1]
	default:
		return nil
	}
}
