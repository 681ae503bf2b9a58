// Package assertion implements the Assertion Layer of spec.md §4.4:
// element-state and value predicates that poll on the same cadence as
// the Locator Engine, a soft-assertion aggregator, and numeric
// approximate-equality and range helpers.
package assertion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paiml/probar/internal/locator"
	"github.com/paiml/probar/internal/perr"
)

const component = "assertion"

// Options configures one assertion call. Policy, if its zero value, is
// replaced with locator.DefaultPolicy() per "inheriting the locator's
// wait policy unless overridden" (spec.md §4.4).
type Options struct {
	Policy locator.WaitPolicy
}

func (o Options) policy() locator.WaitPolicy {
	if o.Policy.TimeoutTotal == 0 && o.Policy.PollInterval == 0 {
		return locator.DefaultPolicy()
	}
	return o.Policy
}

// check is evaluated each poll against the first surviving candidate.
// It returns ok and, on failure, a short description of what was
// observed for the error's State field.
type check func(ctx context.Context, ex locator.Executor, h locator.Handle) (ok bool, observed string, err error)

// poll resolves d to its first candidate and retries check until it
// succeeds, the deadline elapses, or ctx ends.
func poll(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options, name string, c check) error {
	policy := opts.policy()
	deadline := time.Now().Add(policy.TimeoutTotal)
	var lastObserved string

	for {
		candidates, err := locator.Candidates(ctx, d, ex)
		if err != nil {
			return err
		}
		if len(candidates) > 0 {
			ok, observed, err := c(ctx, ex, candidates[0])
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			lastObserved = observed
		} else if name == "hidden" {
			return nil // an absent element counts as hidden
		} else {
			lastObserved = "no matching element"
		}

		if policy.TimeoutTotal == 0 || time.Now().After(deadline) {
			return perr.New(perr.KindTimeout, component, name, lastObserved, nil)
		}
		if ctx.Err() != nil {
			return perr.New(perr.KindTimeout, component, name, lastObserved, ctx.Err())
		}
		t := time.NewTimer(policy.PollInterval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return perr.New(perr.KindTimeout, component, name, lastObserved, ctx.Err())
		}
	}
}

func statePredicate(name string) check {
	return func(ctx context.Context, ex locator.Executor, h locator.Handle) (bool, string, error) {
		ok, err := ex.Predicate(ctx, h, name)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s=false", name), nil
	}
}

// Visible asserts the element is visible.
func Visible(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "visible", statePredicate("visible"))
}

// Hidden asserts the element is not visible (or absent).
func Hidden(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "hidden", func(ctx context.Context, ex locator.Executor, h locator.Handle) (bool, string, error) {
		ok, err := ex.Predicate(ctx, h, "visible")
		if err != nil {
			return false, "", err
		}
		return !ok, "element is visible", nil
	})
}

// Enabled asserts the element is enabled.
func Enabled(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "enabled", statePredicate("enabled"))
}

// Disabled asserts the element is disabled.
func Disabled(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "disabled", statePredicate("disabled"))
}

// Checked asserts the element is checked.
func Checked(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "checked", statePredicate("checked"))
}

// Editable asserts the element accepts input.
func Editable(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "editable", statePredicate("editable"))
}

// Focused asserts the element currently holds focus.
func Focused(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "focused", statePredicate("focused"))
}

// Empty asserts the element's text content, trimmed, is empty.
func Empty(ctx context.Context, d locator.Descriptor, ex locator.Executor, opts Options) error {
	return poll(ctx, d, ex, opts, "empty", statePredicate("empty"))
}

// TextMode selects how HasText compares the observed and expected text.
type TextMode int

const (
	// TextNormalized trims and collapses internal whitespace (the
	// spec.md §4.4 default).
	TextNormalized TextMode = iota
	// TextStrict preserves whitespace exactly.
	TextStrict
	// TextRegex matches the full string against a compiled pattern.
	TextRegex
)

// HasText asserts the element's text content matches expected under mode.
func HasText(ctx context.Context, d locator.Descriptor, ex locator.Executor, expected string, mode TextMode, opts Options) error {
	return poll(ctx, d, ex, opts, "has_text", func(ctx context.Context, ex locator.Executor, h locator.Handle) (bool, string, error) {
		text, err := ex.Text(ctx, h)
		if err != nil {
			return false, "", err
		}
		switch mode {
		case TextStrict:
			if text == expected {
				return true, "", nil
			}
		case TextRegex:
			re, err := compileFullMatch(expected)
			if err != nil {
				return false, "", perr.New(perr.KindValidationError, component, "has_text", "invalid regex", err)
			}
			if re.MatchString(text) {
				return true, "", nil
			}
		default:
			if normalizeWhitespace(text) == normalizeWhitespace(expected) {
				return true, "", nil
			}
		}
		return false, fmt.Sprintf("text=%q", text), nil
	})
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Attribute, value, class, and id assertions query via Evaluate-backed
// accessors the Executor exposes through Predicate/Text; probar's Page
// Agent implements attribute/class/id lookups as text-returning queries
// keyed by a synthetic predicate name, kept generic here so any Executor
// (browser or simulation) can satisfy them.
type AttributeReader interface {
	Attribute(ctx context.Context, h locator.Handle, name string) (string, bool, error)
}

// HasAttribute asserts the element carries attribute name with the exact
// value expected.
func HasAttribute(ctx context.Context, d locator.Descriptor, ex locator.Executor, reader AttributeReader, name, expected string, opts Options) error {
	return poll(ctx, d, ex, opts, "has_attribute", func(ctx context.Context, _ locator.Executor, h locator.Handle) (bool, string, error) {
		value, ok, err := reader.Attribute(ctx, h, name)
		if err != nil {
			return false, "", err
		}
		if ok && value == expected {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s=%q present=%v", name, value, ok), nil
	})
}

// HasValue asserts a form element's value.
func HasValue(ctx context.Context, d locator.Descriptor, ex locator.Executor, reader AttributeReader, expected string, opts Options) error {
	return HasAttribute(ctx, d, ex, reader, "value", expected, opts)
}

// HasClass asserts the element's class list contains want.
func HasClass(ctx context.Context, d locator.Descriptor, ex locator.Executor, reader AttributeReader, want string, opts Options) error {
	return poll(ctx, d, ex, opts, "has_class", func(ctx context.Context, _ locator.Executor, h locator.Handle) (bool, string, error) {
		value, _, err := reader.Attribute(ctx, h, "class")
		if err != nil {
			return false, "", err
		}
		for _, c := range strings.Fields(value) {
			if c == want {
				return true, "", nil
			}
		}
		return false, fmt.Sprintf("class=%q", value), nil
	})
}

// HasID asserts the element's id attribute equals want.
func HasID(ctx context.Context, d locator.Descriptor, ex locator.Executor, reader AttributeReader, want string, opts Options) error {
	return HasAttribute(ctx, d, ex, reader, "id", want, opts)
}

// CSSReader exposes a single computed-style property lookup, kept
// separate from AttributeReader since it is meaningful only for the Page
// Agent's DOM-backed executor.
type CSSReader interface {
	ComputedStyle(ctx context.Context, h locator.Handle, property string) (string, error)
}

// HasCSS asserts the element's computed style property equals expected.
func HasCSS(ctx context.Context, d locator.Descriptor, ex locator.Executor, reader CSSReader, property, expected string, opts Options) error {
	return poll(ctx, d, ex, opts, "has_css", func(ctx context.Context, _ locator.Executor, h locator.Handle) (bool, string, error) {
		value, err := reader.ComputedStyle(ctx, h, property)
		if err != nil {
			return false, "", err
		}
		if value == expected {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s=%q", property, value), nil
	})
}
