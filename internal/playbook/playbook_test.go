package playbook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/playbook"
)

const sampleYAML = `
version: "1"
name: checkout-flow
machine:
  initial: cart
  strict: true
  states:
    cart:
      invariants: [cart_visible]
      on:
        checkout: shipping
    shipping:
      invariants: [shipping_form_visible]
      on:
        submit: confirmed
    confirmed:
      invariants: [confirmation_visible]
  forbidden:
    - from: cart
      to: confirmed
      reason: cannot skip shipping
`

func knownPredicates() map[string]struct{} {
	return map[string]struct{}{
		"cart_visible":            {},
		"shipping_form_visible":   {},
		"confirmation_visible":    {},
	}
}

// queueSource replays a fixed list of events in order.
type queueSource struct {
	events []playbook.Event
	i      int
}

func (q *queueSource) Next(ctx context.Context) (playbook.Event, error) {
	if q.i >= len(q.events) {
		return playbook.Event{}, context.Canceled
	}
	ev := q.events[q.i]
	q.i++
	return ev, nil
}

func alwaysTrue(ctx context.Context) (bool, error) { return true, nil }

func TestParseThenValidateSucceeds(t *testing.T) {
	doc, err := playbook.Parse([]byte(sampleYAML))
	require.NoError(t, err)
	_, err = playbook.Validate(doc, knownPredicates())
	require.NoError(t, err)
}

func TestValidateRejectsUnknownInitialState(t *testing.T) {
	doc, err := playbook.Parse([]byte(`
version: "1"
name: bad
machine:
  initial: nowhere
  states:
    cart: {}
`))
	require.NoError(t, err)
	_, err = playbook.Validate(doc, knownPredicates())
	require.Error(t, err)
	require.True(t, perr.OfKind(err, perr.KindValidationError))
}

func TestValidateRejectsForbiddenCollidingWithDeclared(t *testing.T) {
	doc, err := playbook.Parse([]byte(`
version: "1"
name: bad
machine:
  initial: a
  states:
    a:
      on:
        go: b
    b: {}
  forbidden:
    - from: a
      to: b
      reason: contradicts the declared transition
`))
	require.NoError(t, err)
	_, err = playbook.Validate(doc, knownPredicates())
	require.Error(t, err)
}

func TestValidateRejectsUnknownInvariant(t *testing.T) {
	doc, err := playbook.Parse([]byte(`
version: "1"
name: bad
machine:
  initial: a
  states:
    a:
      invariants: [does_not_exist]
`))
	require.NoError(t, err)
	_, err = playbook.Validate(doc, map[string]struct{}{})
	require.Error(t, err)
}

func TestRunnerWalksDeclaredTransitionsAndChecksInvariants(t *testing.T) {
	doc, err := playbook.Parse([]byte(sampleYAML))
	require.NoError(t, err)
	p, err := playbook.Validate(doc, knownPredicates())
	require.NoError(t, err)

	predicates := map[string]playbook.Predicate{
		"cart_visible":          alwaysTrue,
		"shipping_form_visible": alwaysTrue,
		"confirmation_visible":  alwaysTrue,
	}
	src := &queueSource{events: []playbook.Event{{Name: "checkout"}, {Name: "submit"}}}
	r := playbook.NewRunner(p, predicates, src, nil)

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, "confirmed", r.State())
	require.Equal(t, []string{"cart", "shipping", "confirmed"}, r.History())
}

func TestRunnerReturnsInvariantViolationWhenPredicateFails(t *testing.T) {
	doc, err := playbook.Parse([]byte(sampleYAML))
	require.NoError(t, err)
	p, err := playbook.Validate(doc, knownPredicates())
	require.NoError(t, err)

	predicates := map[string]playbook.Predicate{
		"cart_visible":          func(ctx context.Context) (bool, error) { return false, nil },
		"shipping_form_visible": alwaysTrue,
		"confirmation_visible":  alwaysTrue,
	}
	src := &queueSource{}
	r := playbook.NewRunner(p, predicates, src, nil)

	err = r.Run(context.Background())
	require.Error(t, err)
	var iv *perr.InvariantViolation
	require.ErrorAs(t, err, &iv)
	require.Equal(t, "cart_visible", iv.Predicate)
}

func TestRunnerUnexpectedEventIsHardUnderStrict(t *testing.T) {
	doc, err := playbook.Parse([]byte(sampleYAML))
	require.NoError(t, err)
	p, err := playbook.Validate(doc, knownPredicates())
	require.NoError(t, err)

	predicates := map[string]playbook.Predicate{
		"cart_visible":          alwaysTrue,
		"shipping_form_visible": alwaysTrue,
		"confirmation_visible":  alwaysTrue,
	}
	src := &queueSource{events: []playbook.Event{{Name: "unknown_event"}}}
	r := playbook.NewRunner(p, predicates, src, nil)

	err = r.Run(context.Background())
	require.Error(t, err)
	require.True(t, perr.OfKind(err, perr.KindUnexpectedEvent))
}

func TestRunnerReportsForbiddenTransitionForEventWithNoDeclaredRouteOutOfState(t *testing.T) {
	doc, err := playbook.Parse([]byte(`
version: "1"
name: calculator
machine:
  initial: idle
  states:
    idle:
      on:
        DIGIT: calculating
    calculating:
      on:
        OPERATOR: calculating
        EQUALS: result
    result: {}
  forbidden:
    - from: result
      to: calculating
      reason: must reset before starting a new calculation
`))
	require.NoError(t, err)
	p, err := playbook.Validate(doc, map[string]struct{}{})
	require.NoError(t, err)

	src := &queueSource{events: []playbook.Event{
		{Name: "DIGIT"}, {Name: "OPERATOR"}, {Name: "EQUALS"}, {Name: "OPERATOR"},
	}}
	r := playbook.NewRunner(p, map[string]playbook.Predicate{}, src, nil)

	err = r.Run(context.Background())
	require.Error(t, err)
	var ft *perr.ForbiddenTransition
	require.ErrorAs(t, err, &ft)
	require.Equal(t, "result", ft.From)
	require.Equal(t, "OPERATOR", ft.Via)
	require.Equal(t, "calculating", ft.To)
}

func TestRunnerUnexpectedEventIsSoftWhenNotStrict(t *testing.T) {
	doc, err := playbook.Parse([]byte(`
version: "1"
name: lenient
machine:
  initial: a
  states:
    a:
      invariants: [cart_visible]
      on:
        go: b
    b:
      invariants: [cart_visible]
`))
	require.NoError(t, err)
	p, err := playbook.Validate(doc, knownPredicates())
	require.NoError(t, err)

	predicates := map[string]playbook.Predicate{"cart_visible": alwaysTrue}
	src := &queueSource{events: []playbook.Event{{Name: "noise"}, {Name: "go"}}}
	r := playbook.NewRunner(p, predicates, src, nil)

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, "b", r.State())
}
