// Package browser implements the Page Agent of spec.md §4.2: navigation,
// content queries, scripting, input, media, and locator resolution over
// a Session Transport connected to a real Chrome instance's control
// channel. Chrome itself is spawned with go-rod/rod/lib/launcher — only
// the launcher, never rod's own CDP client, since the Wire Codec and
// Session Transport this package sits on are built by hand (internal/wire,
// internal/transport), the same way the teacher's chrome_launcher.go
// script spawns a debuggable Chrome without otherwise depending on rod.
package browser

import (
	"context"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"github.com/paiml/probar/internal/transport"
)

// LaunchOptions configures the Chrome process the Agent will attach to.
type LaunchOptions struct {
	Headless    bool
	NoSandbox   bool
	UserDataDir string
	Port        string
}

// DefaultLaunchOptions matches the teacher's chrome_launcher.go defaults
// except Headless, which defaults true since probar runs mostly in CI.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{Headless: true, Port: "9222"}
}

// Launch starts a Chrome process per opts and returns its debugger
// WebSocket URL plus a cleanup function that terminates the process.
func Launch(opts LaunchOptions) (url string, cleanup func(), err error) {
	l := launcher.New().Set("remote-debugging-port", opts.Port).Headless(opts.Headless)
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	url, err = l.Launch()
	if err != nil {
		return "", nil, err
	}
	return url, l.Cleanup, nil
}

// Connect dials url and wraps the resulting Session in a new Agent bound
// to targetID (the browsing-context identifier CDP assigns the page).
func Connect(ctx context.Context, url, targetID string, logger *zap.Logger) (*Agent, error) {
	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	session := transport.NewSession(conn, logger)
	return NewAgent(session, targetID), nil
}
