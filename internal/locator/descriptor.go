// Package locator implements the auto-waiting state machine of spec.md
// §4.3: a declarative element descriptor is resolved against an Executor
// by polling until it becomes Actionable, times out, or (under strict
// mode) finds more than one surviving candidate.
package locator

import (
	"context"
	"regexp"
	"strings"

	"github.com/paiml/probar/internal/perr"
)

const component = "locator"

// Kind tags the atomic query a Descriptor issues. New kinds are added by
// extending this variant and Executor.Query's dispatch, per spec.md §9's
// "dynamic dispatch as tagged variant" note.
type Kind string

const (
	KindCSS         Kind = "css"
	KindXPath       Kind = "xpath"
	KindText        Kind = "text"
	KindTestID      Kind = "test_id"
	KindRole        Kind = "role"
	KindLabel       Kind = "label"
	KindPlaceholder Kind = "placeholder"
	KindAltText     Kind = "alt_text"
	KindGameEntity  Kind = "game_entity"
)

// TextPattern is a literal substring or a regular expression, resolving
// the bracketed-pattern Open Question from spec.md §9(3): a value wrapped
// in "/.../ " is a regex, anything else is a case-sensitive literal
// substring match.
type TextPattern struct {
	Pattern string
	Regex   *regexp.Regexp
}

func parseTextPattern(raw string) TextPattern {
	if len(raw) >= 2 && raw[0] == '/' && raw[len(raw)-1] == '/' {
		if re, err := regexp.Compile(raw[1 : len(raw)-1]); err == nil {
			return TextPattern{Pattern: raw, Regex: re}
		}
	}
	return TextPattern{Pattern: raw}
}

// Match reports whether text satisfies the pattern.
func (p TextPattern) Match(text string) bool {
	if p.Regex != nil {
		return p.Regex.MatchString(text)
	}
	return strings.Contains(text, p.Pattern)
}

// Filter narrows a Filtered-state candidate set in declaration order
// (spec.md §4.3 "Candidate → Filtered").
type Filter interface {
	apply(ctx context.Context, candidates []Handle, ex Executor) ([]Handle, error)
}

type textFilter struct{ pattern TextPattern }

func (f textFilter) apply(ctx context.Context, candidates []Handle, ex Executor) ([]Handle, error) {
	out := make([]Handle, 0, len(candidates))
	for _, h := range candidates {
		text, err := ex.Text(ctx, h)
		if err != nil {
			return nil, err
		}
		if f.pattern.Match(text) {
			out = append(out, h)
		}
	}
	return out, nil
}

type hasDescendantFilter struct{ sub Descriptor }

func (f hasDescendantFilter) apply(ctx context.Context, candidates []Handle, ex Executor) ([]Handle, error) {
	out := make([]Handle, 0, len(candidates))
	for _, h := range candidates {
		scoped := h
		sub, err := resolveCandidates(ctx, f.sub, ex, &scoped)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

// HasText adds a text filter in declaration order.
func HasText(raw string) Filter { return textFilter{pattern: parseTextPattern(raw)} }

// HasDescendant adds a has-descendant filter: the sub-locator must be
// non-empty against each candidate, scoped to that candidate.
func HasDescendant(sub Descriptor) Filter { return hasDescendantFilter{sub: sub} }

// position selects candidates after all filters are applied.
type position struct {
	first, last bool
	nth         int // -1 if unused
}

// Descriptor is the tagged variant of spec.md §4.3: an atomic selector
// query with declaration-ordered filters, or a composite combinator over
// two sub-descriptors.
type Descriptor struct {
	// atomic
	kind    Kind
	value   string
	filters []Filter
	strict  bool
	pos     *position

	// composite ("and"/"or" intersect/union candidate sets by identity,
	// per spec.md §4.3's refinement-composition rule)
	op    combineOp
	left  *Descriptor
	right *Descriptor
}

type combineOp int

const (
	opNone combineOp = iota
	opAnd
	opOr
)

func atomic(kind Kind, value string) Descriptor {
	if value == "" {
		panic(perr.New(perr.KindValidationError, component, "new_descriptor", "empty selector string", nil))
	}
	return Descriptor{kind: kind, value: value}
}

func CSS(selector string) Descriptor         { return atomic(KindCSS, selector) }
func XPath(expr string) Descriptor           { return atomic(KindXPath, expr) }
func Text(raw string) Descriptor             { return atomic(KindText, raw) }
func TestID(id string) Descriptor            { return atomic(KindTestID, id) }
func Role(role string) Descriptor            { return atomic(KindRole, role) }
func Label(label string) Descriptor          { return atomic(KindLabel, label) }
func Placeholder(text string) Descriptor     { return atomic(KindPlaceholder, text) }
func AltText(text string) Descriptor         { return atomic(KindAltText, text) }
func GameEntity(name string) Descriptor      { return atomic(KindGameEntity, name) }

// With returns a copy of d with the given filters appended in order.
func (d Descriptor) With(filters ...Filter) Descriptor {
	d.filters = append(append([]Filter{}, d.filters...), filters...)
	return d
}

// Strict marks d so that more than one surviving candidate at resolution
// time yields a StrictViolation rather than selecting the first.
func (d Descriptor) Strict() Descriptor {
	d.strict = true
	return d
}

// First restricts d to the first candidate in document order, applied
// after all filters (spec.md §4.3).
func (d Descriptor) First() Descriptor { return d.withPosition(position{first: true, nth: -1}) }

// Last restricts d to the last candidate in document order.
func (d Descriptor) Last() Descriptor { return d.withPosition(position{last: true, nth: -1}) }

// Nth restricts d to the candidate at zero-based index n in document
// order.
func (d Descriptor) Nth(n int) Descriptor { return d.withPosition(position{nth: n}) }

func (d Descriptor) withPosition(p position) Descriptor {
	d.pos = &p
	return d
}

// And intersects the candidate sets of a and b by identity.
func And(a, b Descriptor) Descriptor { return Descriptor{op: opAnd, left: &a, right: &b} }

// Or unions the candidate sets of a and b by identity, de-duplicating in
// document order.
func Or(a, b Descriptor) Descriptor { return Descriptor{op: opOr, left: &a, right: &b} }
