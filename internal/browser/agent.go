package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/paiml/probar/internal/locator"
	"github.com/paiml/probar/internal/logging"
	"github.com/paiml/probar/internal/perr"
	"github.com/paiml/probar/internal/transport"
)

const component = "browser"

// Agent is the Page Agent of spec.md §4.2. It owns no back-reference to
// the Session beyond the handle it was given (spec.md §9's "session owns
// the agents" ownership rule) and exposes only what the locator and
// assertion layers need plus navigation/content/input/media operations.
type Agent struct {
	session  *transport.Session
	targetID string
	logger   *zap.Logger

	generation atomic.Uint64 // bumped on every committed navigation

	mu      sync.Mutex
	handles map[string]handleInfo // objectId -> bookkeeping, cleared per generation
}

type handleInfo struct {
	objectID   string
	generation uint64
}

// NewAgent wraps session for the browsing context identified by
// targetID.
func NewAgent(session *transport.Session, targetID string) *Agent {
	return &Agent{
		session:  session,
		targetID: targetID,
		logger:   logging.Nop(),
		handles:  map[string]handleInfo{},
	}
}

func (a *Agent) send(ctx context.Context, method string, params interface{}, out interface{}) error {
	result, err := a.session.Send(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || result == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return perr.New(perr.KindProtocolError, component, method, "", err)
	}
	return nil
}

func (a *Agent) currentGeneration() uint64 { return a.generation.Load() }

// markDetachedGeneration invalidates every handle from a prior
// generation, per spec.md §4.2: "when a navigation commits, all element
// handles scoped to the prior document are marked detached."
func (a *Agent) markDetachedGeneration() uint64 {
	gen := a.generation.Add(1)
	a.mu.Lock()
	a.handles = map[string]handleInfo{}
	a.mu.Unlock()
	return gen
}

func (a *Agent) registerHandle(objectID string) locator.Handle {
	gen := a.currentGeneration()
	id := fmt.Sprintf("%d:%s", gen, objectID)
	a.mu.Lock()
	a.handles[id] = handleInfo{objectID: objectID, generation: gen}
	a.mu.Unlock()
	return locator.Handle{ID: id}
}

func (a *Agent) lookup(h locator.Handle) (handleInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.handles[h.ID]
	if !ok || info.generation != a.currentGeneration() {
		return handleInfo{}, false
	}
	return info, true
}

// --- locator.Executor ---

var kindToJSExpr = map[locator.Kind]string{
	locator.KindCSS:         `document.querySelectorAll(%s)`,
	locator.KindTestID:      `document.querySelectorAll('[data-testid=' + JSON.stringify(%s) + ']')`,
	locator.KindLabel:       `document.querySelectorAll('[aria-label=' + JSON.stringify(%s) + ']')`,
	locator.KindPlaceholder: `document.querySelectorAll('[placeholder=' + JSON.stringify(%s) + ']')`,
	locator.KindAltText:     `document.querySelectorAll('img[alt=' + JSON.stringify(%s) + ']')`,
	locator.KindRole:        `document.querySelectorAll('[role=' + JSON.stringify(%s) + ']')`,
}

// Query implements locator.Executor. GameEntity is not queryable through
// the Page Agent; it is only meaningful against the Simulation Engine.
func (a *Agent) Query(ctx context.Context, kind locator.Kind, value string, scope *locator.Handle) ([]locator.Handle, error) {
	if kind == locator.KindGameEntity {
		return nil, perr.New(perr.KindValidationError, component, "query", "game_entity is not resolvable by the Page Agent", nil)
	}

	var expr string
	switch kind {
	case locator.KindXPath:
		expr = fmt.Sprintf(`probarXPathAll(%s)`, jsonString(value))
	case locator.KindText:
		expr = fmt.Sprintf(`probarTextAll(%s)`, jsonString(value))
	default:
		tmpl, ok := kindToJSExpr[kind]
		if !ok {
			return nil, perr.New(perr.KindValidationError, component, "query", fmt.Sprintf("unsupported kind %q", kind), nil)
		}
		expr = fmt.Sprintf(tmpl, jsonString(value))
	}

	scopeExpr := "document"
	if scope != nil {
		info, ok := a.lookup(*scope)
		if !ok {
			return nil, nil // the scope detached; has-descendant filters treat this as zero descendants
		}
		scopeExpr = fmt.Sprintf("probarResolve(%s)", jsonString(info.objectID))
	}

	var out struct {
		Result struct {
			Value struct {
				ObjectIDs []string `json:"objectIds"`
			} `json:"value"`
		} `json:"result"`
	}
	script := fmt.Sprintf(`probarCollectHandles(%s, function(document){ return %s; })`, scopeExpr, expr)
	if err := a.send(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    script,
		"returnByValue": true,
	}, &out); err != nil {
		return nil, err
	}

	handles := make([]locator.Handle, 0, len(out.Result.Value.ObjectIDs))
	for _, id := range out.Result.Value.ObjectIDs {
		handles = append(handles, a.registerHandle(id))
	}
	return handles, nil
}

// Resolves implements locator.Executor.
func (a *Agent) Resolves(ctx context.Context, h locator.Handle) (bool, error) {
	info, ok := a.lookup(h)
	if !ok {
		return false, nil
	}
	var out struct {
		Result struct{ Value bool } `json:"result"`
	}
	err := a.send(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"objectId":            info.objectID,
		"functionDeclaration": `function(){ return this.isConnected === true; }`,
		"returnByValue":       true,
	}, &out)
	if err != nil {
		if perr.OfKind(err, perr.KindRemoteError) {
			return false, nil
		}
		return false, err
	}
	return out.Result.Value, nil
}

// Predicate implements locator.Executor for the named wait predicates.
func (a *Agent) Predicate(ctx context.Context, h locator.Handle, name string) (bool, error) {
	info, ok := a.lookup(h)
	if !ok {
		return false, nil
	}
	fn, ok := predicateFunctions[name]
	if !ok {
		return false, perr.New(perr.KindValidationError, component, "predicate", fmt.Sprintf("unknown predicate %q", name), nil)
	}
	var out struct {
		Result struct{ Value bool } `json:"result"`
	}
	if err := a.send(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"objectId":            info.objectID,
		"functionDeclaration": fn,
		"returnByValue":       true,
	}, &out); err != nil {
		return false, err
	}
	return out.Result.Value, nil
}

var predicateFunctions = map[string]string{
	"visible": `function(){
		const r = this.getBoundingClientRect();
		if (r.width <= 0 || r.height <= 0) return false;
		const style = getComputedStyle(this);
		if (style.visibility === 'hidden' || style.display === 'none') return false;
		for (let p = this.parentElement; p; p = p.parentElement) {
			if (getComputedStyle(p).display === 'none') return false;
		}
		return true;
	}`,
	"enabled":  `function(){ return !this.disabled; }`,
	"disabled": `function(){ return !!this.disabled; }`,
	"checked":  `function(){ return !!this.checked; }`,
	"editable": `function(){ return !this.disabled && !this.readOnly; }`,
	"focused":  `function(){ return document.activeElement === this; }`,
	"empty":    `function(){ return (this.textContent || '').trim().length === 0; }`,
}

// BoundingRect implements locator.Executor.
func (a *Agent) BoundingRect(ctx context.Context, h locator.Handle) (locator.Rect, error) {
	info, ok := a.lookup(h)
	if !ok {
		return locator.Rect{}, perr.New(perr.KindDetached, component, "bounding_rect", h.ID, nil)
	}
	var out struct {
		Result struct {
			Value locator.Rect `json:"value"`
		} `json:"result"`
	}
	err := a.send(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"objectId":            info.objectID,
		"functionDeclaration": `function(){ const r = this.getBoundingClientRect(); return {X:r.x, Y:r.y, Width:r.width, Height:r.height}; }`,
		"returnByValue":       true,
	}, &out)
	return out.Result.Value, err
}

// Text implements locator.Executor.
func (a *Agent) Text(ctx context.Context, h locator.Handle) (string, error) {
	info, ok := a.lookup(h)
	if !ok {
		return "", perr.New(perr.KindDetached, component, "text", h.ID, nil)
	}
	var out struct {
		Result struct{ Value string } `json:"result"`
	}
	err := a.send(ctx, "Runtime.callFunctionOn", map[string]interface{}{
		"objectId":            info.objectID,
		"functionDeclaration": `function(){ return (this.textContent || '').trim(); }`,
		"returnByValue":       true,
	}, &out)
	return out.Result.Value, err
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
