package browser

import (
	"context"
	"encoding/json"

	"github.com/paiml/probar/internal/perr"
)

// Content returns the current document's serialized HTML.
func (a *Agent) Content(ctx context.Context) (string, error) {
	var out struct {
		Result struct{ Value string } `json:"result"`
	}
	err := a.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    "document.documentElement.outerHTML",
		"returnByValue": true,
	}, &out)
	return out.Result.Value, err
}

// Title returns the current document title.
func (a *Agent) Title(ctx context.Context) (string, error) {
	var out struct {
		Result struct{ Value string } `json:"result"`
	}
	err := a.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    "document.title",
		"returnByValue": true,
	}, &out)
	return out.Result.Value, err
}

// URL returns the current document URL.
func (a *Agent) URL(ctx context.Context) (string, error) {
	var out struct {
		Result struct{ Value string } `json:"result"`
	}
	err := a.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    "document.location.href",
		"returnByValue": true,
	}, &out)
	return out.Result.Value, err
}

// RemoteError carries the message, class name and stack of a remote
// JavaScript throw, per spec.md §4.2's evaluate failure semantics.
type RemoteError struct {
	Message   string
	ClassName string
	Stack     string
}

func (e *RemoteError) Error() string { return e.ClassName + ": " + e.Message }

// Evaluate runs expression in the page's current execution context and
// decodes the returned value into out.
func (a *Agent) Evaluate(ctx context.Context, expression string, out interface{}) error {
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Exception struct {
				ClassName   string `json:"className"`
				Description string `json:"description"`
			} `json:"exception"`
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := a.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
	}, &result); err != nil {
		return err
	}
	if result.ExceptionDetails != nil {
		return perr.New(perr.KindRemoteError, component, "evaluate", expression, &RemoteError{
			Message:   result.ExceptionDetails.Exception.Description,
			ClassName: result.ExceptionDetails.Exception.ClassName,
			Stack:     result.ExceptionDetails.Text,
		})
	}
	if out == nil || result.Result.Value == nil {
		return nil
	}
	if err := json.Unmarshal(result.Result.Value, out); err != nil {
		return perr.New(perr.KindProtocolError, component, "evaluate", expression, err)
	}
	return nil
}
