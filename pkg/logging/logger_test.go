package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLogger(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	logger.Info("info test")
	logger.Warn("warn test")
	logger.Debug("debug test")
}

func TestError(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	err := errors.New("an error occurred")

	logger.Error(err)
	logger.MaybeError(err)
}

func TestMaybeErrorNil(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	// Callers pass Save results through unconditionally; nil must not
	// panic
	logger.MaybeError(nil)
	logger.MaybeError(nil, "key", "value")
}

func TestSecurity(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	logger.Security(SecurityLogEntry{
		Timestamp:       time.Now(),
		Severity:        SeverityMedium,
		Category:        CategoryNonceReplay,
		Description:     "replayed nonce rejected",
		OffenderAddress: "127.0.0.1:52100",
	})
}
