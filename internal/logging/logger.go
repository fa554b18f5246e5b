package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: human-readable in dev, JSON elsewhere.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
