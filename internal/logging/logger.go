// Package logging builds the structured zap.Logger shared by every probar
// component, following the same NewProductionConfig + debug-level-on-verbose
// pattern cmd/probar uses for its own CLI output.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Verbose bool
	JSON    bool
}

// New builds a *zap.Logger for the given component name. Component is added
// as a fixed field ("component") so log aggregation can filter by
// subsystem (wire, transport, locator, wasmrt, sim, playbook, falsify,
// scorer, ...).
func New(component string, opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("component", component)), nil
}

// Nop returns a logger that discards everything, for components that were
// not given an explicit logger (e.g. in unit tests).
func Nop() *zap.Logger {
	return zap.NewNop()
}
