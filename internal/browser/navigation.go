package browser

import (
	"context"
	"time"

	"github.com/paiml/probar/internal/perr"
)

// LoadState is one of the three load states spec.md §4.2 names.
type LoadState string

const (
	LoadDOMContentLoaded LoadState = "dom_content_loaded"
	LoadComplete         LoadState = "load"
	LoadNetworkIdle      LoadState = "network_idle"
)

const networkIdleWindow = 500 * time.Millisecond

// Goto navigates to url and returns once waitUntil is observed.
// Detachment-on-Actionable's sibling decision applies here too: every
// element handle scoped to the previous document is marked detached the
// moment the navigation commits (spec.md §4.2).
func (a *Agent) Goto(ctx context.Context, url string, waitUntil LoadState) error {
	if err := a.send(ctx, "Page.navigate", map[string]string{"url": url}, nil); err != nil {
		return perr.New(perr.KindNavigationTimeout, component, "goto", url, err)
	}
	a.markDetachedGeneration()
	return a.awaitLoadState(ctx, waitUntil, url)
}

// Reload reloads the current document and waits for waitUntil.
func (a *Agent) Reload(ctx context.Context, waitUntil LoadState) error {
	if err := a.send(ctx, "Page.reload", nil, nil); err != nil {
		return perr.New(perr.KindNavigationTimeout, component, "reload", "", err)
	}
	a.markDetachedGeneration()
	return a.awaitLoadState(ctx, waitUntil, "")
}

// Back navigates one entry back in session history.
func (a *Agent) Back(ctx context.Context, waitUntil LoadState) error {
	return a.navigateHistory(ctx, "back", waitUntil)
}

// Forward navigates one entry forward in session history.
func (a *Agent) Forward(ctx context.Context, waitUntil LoadState) error {
	return a.navigateHistory(ctx, "forward", waitUntil)
}

func (a *Agent) navigateHistory(ctx context.Context, direction string, waitUntil LoadState) error {
	if err := a.send(ctx, "Page.navigateHistory", map[string]string{"direction": direction}, nil); err != nil {
		return perr.New(perr.KindNavigationTimeout, component, direction, "", err)
	}
	a.markDetachedGeneration()
	return a.awaitLoadState(ctx, waitUntil, "")
}

// awaitLoadState blocks until the requested load state is observed or ctx
// is done, surfacing partial progress on timeout per spec.md §4.2.
func (a *Agent) awaitLoadState(ctx context.Context, waitUntil LoadState, url string) error {
	switch waitUntil {
	case LoadDOMContentLoaded:
		return a.awaitEvent(ctx, "Page.domContentEventFired", url)
	case LoadComplete:
		return a.awaitEvent(ctx, "Page.loadEventFired", url)
	case LoadNetworkIdle:
		return a.awaitNetworkIdle(ctx, url)
	default:
		return perr.New(perr.KindValidationError, component, "goto", "unknown load state", nil)
	}
}

func (a *Agent) awaitEvent(ctx context.Context, topic, url string) error {
	sub := a.session.Subscribe(topic)
	defer sub.Close()
	select {
	case <-sub.Events():
		return nil
	case <-ctx.Done():
		return perr.New(perr.KindNavigationTimeout, component, "await_load_state", url, ctx.Err())
	}
}

// awaitNetworkIdle waits for a networkIdleWindow with zero outstanding
// requests, counting both same-origin and cross-origin traffic per the
// Open Question decision recorded in SPEC_FULL.md §13(2).
func (a *Agent) awaitNetworkIdle(ctx context.Context, url string) error {
	started := a.session.Subscribe("Network.requestWillBeSent")
	finished := a.session.Subscribe("Network.loadingFinished")
	failed := a.session.Subscribe("Network.loadingFailed")
	defer started.Close()
	defer finished.Close()
	defer failed.Close()

	inFlight := 0
	timer := time.NewTimer(networkIdleWindow)
	defer timer.Stop()

	for {
		select {
		case <-started.Events():
			inFlight++
			resetTimer(timer, networkIdleWindow)
		case <-finished.Events():
			if inFlight > 0 {
				inFlight--
			}
			if inFlight == 0 {
				resetTimer(timer, networkIdleWindow)
			}
		case <-failed.Events():
			if inFlight > 0 {
				inFlight--
			}
			if inFlight == 0 {
				resetTimer(timer, networkIdleWindow)
			}
		case <-timer.C:
			if inFlight == 0 {
				return nil
			}
			resetTimer(timer, networkIdleWindow)
		case <-ctx.Done():
			return perr.New(perr.KindNavigationTimeout, component, "await_network_idle", url, ctx.Err())
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
