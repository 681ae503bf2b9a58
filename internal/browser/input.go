package browser

import (
	"context"
	"time"

	"github.com/paiml/probar/internal/locator"
	"github.com/paiml/probar/internal/perr"
)

// act resolves d and invokes fn on the resulting handle, transparently
// re-resolving if the handle detaches between Actionable and the action
// running, up to the remaining deadline (the Open Question decision in
// SPEC_FULL.md §13(1)).
func (a *Agent) act(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy, op string, fn func(context.Context, locator.Handle) error) error {
	deadline := time.Now().Add(policy.TimeoutTotal)
	for {
		res, err := locator.Resolve(ctx, d, a, policy)
		if err != nil {
			return err
		}
		err = fn(ctx, res.Handle)
		if err == nil {
			return nil
		}
		if !perr.OfKind(err, perr.KindDetached) {
			return err
		}
		if time.Now().After(deadline) {
			return perr.New(perr.KindDetached, component, op, "remaining deadline exhausted", err)
		}
		// loop: re-resolve and retry the action
	}
}

// Click resolves d and clicks the resulting element.
func (a *Agent) Click(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy) error {
	return a.act(ctx, d, policy, "click", func(ctx context.Context, h locator.Handle) error {
		return a.dispatchOnHandle(ctx, h, "click", `function(){ this.click(); return true; }`)
	})
}

// Hover resolves d and dispatches a hover (mouseover) event.
func (a *Agent) Hover(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy) error {
	return a.act(ctx, d, policy, "hover", func(ctx context.Context, h locator.Handle) error {
		return a.dispatchOnHandle(ctx, h, "hover", `function(){ this.dispatchEvent(new MouseEvent('mouseover', {bubbles:true})); return true; }`)
	})
}

// Tap resolves d and dispatches a touch tap.
func (a *Agent) Tap(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy) error {
	return a.act(ctx, d, policy, "tap", func(ctx context.Context, h locator.Handle) error {
		return a.dispatchOnHandle(ctx, h, "tap", `function(){ this.dispatchEvent(new Event('touchstart', {bubbles:true})); this.click(); return true; }`)
	})
}

// Fill resolves d and sets its value directly (bypassing per-keystroke
// events), replacing any current content.
func (a *Agent) Fill(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy, value string) error {
	return a.act(ctx, d, policy, "fill", func(ctx context.Context, h locator.Handle) error {
		return a.dispatchOnHandle(ctx, h, "fill", `function(v){ this.value = v; this.dispatchEvent(new Event('input', {bubbles:true})); return true; }`, value)
	})
}

// Type resolves d and dispatches one key event per rune of text.
func (a *Agent) Type(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy, text string) error {
	return a.act(ctx, d, policy, "type", func(ctx context.Context, h locator.Handle) error {
		for _, r := range text {
			if err := a.Press(ctx, d, policy, string(r)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Press resolves d and dispatches a single key press.
func (a *Agent) Press(ctx context.Context, d locator.Descriptor, policy locator.WaitPolicy, key string) error {
	return a.act(ctx, d, policy, "press", func(ctx context.Context, h locator.Handle) error {
		info, ok := a.lookup(h)
		if !ok {
			return perr.New(perr.KindDetached, component, "press", h.ID, nil)
		}
		return a.send(ctx, "Input.dispatchKeyEvent", map[string]interface{}{
			"type":    "keyDown",
			"key":     key,
			"objectId": info.objectID,
		}, nil)
	})
}

func (a *Agent) dispatchOnHandle(ctx context.Context, h locator.Handle, op, fn string, args ...interface{}) error {
	info, ok := a.lookup(h)
	if !ok {
		return perr.New(perr.KindDetached, component, op, h.ID, nil)
	}
	params := map[string]interface{}{
		"objectId":            info.objectID,
		"functionDeclaration": fn,
		"returnByValue":       true,
	}
	if len(args) > 0 {
		callArgs := make([]map[string]interface{}, len(args))
		for i, arg := range args {
			callArgs[i] = map[string]interface{}{"value": arg}
		}
		params["arguments"] = callArgs
	}
	var out struct {
		Result struct{ Value bool } `json:"result"`
	}
	if err := a.send(ctx, "Runtime.callFunctionOn", params, &out); err != nil {
		if perr.OfKind(err, perr.KindRemoteError) {
			return perr.New(perr.KindDetached, component, op, h.ID, err)
		}
		return err
	}
	return nil
}
