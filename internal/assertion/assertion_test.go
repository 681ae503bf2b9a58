package assertion_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paiml/probar/internal/assertion"
	"github.com/paiml/probar/internal/locator"
	"github.com/paiml/probar/internal/perr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExecutor struct {
	exists    bool
	visible   bool
	enabled   bool
	text      string
	becomeAt  time.Time
}

func (f *fakeExecutor) Query(ctx context.Context, kind locator.Kind, value string, scope *locator.Handle) ([]locator.Handle, error) {
	if !f.exists {
		return nil, nil
	}
	return []locator.Handle{{ID: "el"}}, nil
}

func (f *fakeExecutor) Resolves(ctx context.Context, h locator.Handle) (bool, error) { return f.exists, nil }

func (f *fakeExecutor) Predicate(ctx context.Context, h locator.Handle, name string) (bool, error) {
	switch name {
	case "visible":
		if !f.becomeAt.IsZero() {
			return time.Now().After(f.becomeAt), nil
		}
		return f.visible, nil
	case "enabled":
		return f.enabled, nil
	}
	return false, nil
}

func (f *fakeExecutor) BoundingRect(ctx context.Context, h locator.Handle) (locator.Rect, error) {
	return locator.Rect{}, nil
}

func (f *fakeExecutor) Text(ctx context.Context, h locator.Handle) (string, error) { return f.text, nil }

func TestVisibleSucceedsOncePredicateHolds(t *testing.T) {
	ex := &fakeExecutor{exists: true, becomeAt: time.Now().Add(80 * time.Millisecond)}
	opts := assertion.Options{Policy: locator.WaitPolicy{TimeoutTotal: time.Second, PollInterval: 10 * time.Millisecond}}
	err := assertion.Visible(context.Background(), locator.CSS("#x"), ex, opts)
	require.NoError(t, err)
}

func TestHiddenFailsWhenElementIsVisible(t *testing.T) {
	ex := &fakeExecutor{exists: true, visible: true}
	opts := assertion.Options{Policy: locator.WaitPolicy{TimeoutTotal: 40 * time.Millisecond, PollInterval: 10 * time.Millisecond}}
	err := assertion.Hidden(context.Background(), locator.CSS("#x"), ex, opts)
	require.Error(t, err)
	require.True(t, perr.OfKind(err, perr.KindTimeout))
}

func TestHasTextNormalizedCollapsesWhitespace(t *testing.T) {
	ex := &fakeExecutor{exists: true, text: "  hello   world  "}
	opts := assertion.Options{Policy: locator.WaitPolicy{TimeoutTotal: 40 * time.Millisecond, PollInterval: 10 * time.Millisecond}}
	err := assertion.HasText(context.Background(), locator.CSS("#x"), ex, "hello world", assertion.TextNormalized, opts)
	require.NoError(t, err)
}

func TestHasTextRegexMatchesFullString(t *testing.T) {
	ex := &fakeExecutor{exists: true, text: "order-42"}
	opts := assertion.Options{Policy: locator.WaitPolicy{TimeoutTotal: 40 * time.Millisecond, PollInterval: 10 * time.Millisecond}}
	require.NoError(t, assertion.HasText(context.Background(), locator.CSS("#x"), ex, `order-\d+`, assertion.TextRegex, opts))
	require.Error(t, assertion.HasText(context.Background(), locator.CSS("#x"), ex, `order-\d+-extra`, assertion.TextRegex, opts))
}

func TestApproxEqualRejectsNaN(t *testing.T) {
	_, err := assertion.ApproxEqual(math.NaN(), 1.0, 0.01)
	require.Error(t, err)

	ok, err := assertion.ApproxEqual(1.0001, 1.0, 0.01)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRangeRejectsInverted(t *testing.T) {
	_, err := assertion.NewRange(10, 5)
	require.Error(t, err)

	r, err := assertion.NewRange(5, 10)
	require.NoError(t, err)
	require.True(t, r.Contains(7))
	require.True(t, r.Contains(5))
	require.True(t, r.Contains(10))
	require.False(t, r.Contains(11))
}

func TestSoftAggregatorCollectsInRegistrationOrder(t *testing.T) {
	var soft assertion.Soft
	visibleEx := &fakeExecutor{exists: true, visible: true}
	hiddenOpts := assertion.Options{Policy: locator.WaitPolicy{TimeoutTotal: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond}}

	soft.Check("visible-a", func() error {
		return assertion.Visible(context.Background(), locator.CSS("a"), visibleEx, hiddenOpts)
	})
	soft.Check("has-text-b", func() error {
		return assertion.HasText(context.Background(), locator.CSS("b"), &fakeExecutor{exists: true, text: "Y"}, "X", assertion.TextStrict, hiddenOpts)
	})
	soft.Check("enabled-c", func() error {
		return assertion.Enabled(context.Background(), locator.CSS("c"), &fakeExecutor{exists: true, enabled: false}, hiddenOpts)
	})

	failures := soft.Collect()
	require.Len(t, failures, 2)
	require.Equal(t, "has-text-b", failures[0].Name)
	require.Equal(t, "enabled-c", failures[1].Name)
}
