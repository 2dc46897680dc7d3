package browser

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLauncher returns the launcher for opts.Engine.
func NewLauncher(opts Options, logger *zap.Logger) (Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Engine {
	case EngineRod, "":
		return NewChromeManager(opts, logger.Named("rod")), nil
	case EnginePlaywright:
		return NewPlaywrightManager(opts, logger.Named("playwright")), nil
	default:
		return nil, fmt.Errorf("unknown engine: %s", opts.Engine)
	}
}

// ParseEngine validates an engine name.
func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case EngineRod, EnginePlaywright:
		return Engine(s), nil
	default:
		return "", fmt.Errorf("unknown engine %q (want %s or %s)", s, EngineRod, EnginePlaywright)
	}
}
