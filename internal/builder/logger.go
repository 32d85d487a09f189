package builder

import (
	"fmt"

	"go.uber.org/zap"
)

// setupLogger builds a JSON production logger at the given level
func setupLogger(level string) (*zap.Logger, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = atomicLevel
	zapConfig.OutputPaths = []string{"stdout"}

	return zapConfig.Build()
}
