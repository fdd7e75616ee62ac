package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mdobak/go-xerrors"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/afero"
)

// SecurityLogEntry captures protocol-level security events (replayed
// nonces, bad signatures, rate limit violations) in a structure that
// external log processors can consume.
type SecurityLogEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Severity        string    `json:"severity"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	Details         string    `json:"details,omitempty"`
	OffenderAddress string    `json:"offender_address,omitempty"`
	OffenderKID     string    `json:"offender_kid,omitempty"`
}

const (
	LevelTrace    = slog.Level(-8)
	LevelFatal    = slog.Level(12)
	LevelSecurity = slog.Level(16)

	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"

	CategoryNonceReplay   = "Nonce Replay"
	CategoryBadSignature  = "Bad Signature"
	CategoryRateLimit     = "Rate Limit"
	CategoryUnauthorized  = "Unauthorized"
	CategoryKeyRollover   = "Key Rollover"
	CategoryRevocation    = "Revocation"
	CategoryIssuance      = "Issuance"
	CategoryChallengeFail = "Challenge Failure"
)

type Logger struct {
	logger *slog.Logger
}

func DefaultLogger() *Logger {
	return NewLogger(slog.LevelDebug, nil)
}

// NewLogger creates a logger that writes JSON records to the provided
// log file. At debug level a text handler is fanned out to stdout so
// interactive sessions get readable output alongside the JSON log.
func NewLogger(level slog.Level, logFile afero.File) *Logger {

	var logger *slog.Logger

	var out io.Writer = os.Stderr
	if logFile != nil {
		out = logFile
	}
	logfileHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	if level == slog.LevelDebug {
		textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
		logger = slog.New(
			slogmulti.Fanout(logfileHandler, textHandler),
		)
	} else {
		logger = slog.New(logfileHandler)
	}

	return &Logger{
		logger: logger,
	}
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Debugf(message string, args ...any) {
	l.logger.Debug(fmt.Sprintf(message, args...))
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Infof(message string, args ...any) {
	l.logger.Info(fmt.Sprintf(message, args...))
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

func (l *Logger) Warnf(message string, args ...any) {
	l.logger.Warn(fmt.Sprintf(message, args...))
}

func (l *Logger) Error(err error, args ...any) {
	if l == nil || l.logger == nil {
		// Error occurred before the logger was initialized
		slog.Error(err.Error(), args...)
		return
	}
	xerr := xerrors.New(err)
	l.logger.Error(err.Error(), slog.Any("error", xerr))
}

func (l *Logger) Errorf(message string, args ...any) {
	l.logger.Error(fmt.Sprintf(message, args...))
}

// MaybeError logs conditions that are errors to the caller but expected
// during normal operation, such as record-not-found lookups. A nil
// error is a no-op so callers can pass results through unconditionally.
func (l *Logger) MaybeError(err error, args ...any) {
	if err == nil {
		return
	}
	l.logger.Warn(err.Error(), args...)
}

func (l *Logger) Fatal(message string, args ...any) {
	l.logger.Error(message, args...)
	os.Exit(-1)
}

func (l *Logger) Fatalf(message string, args ...any) {
	l.Fatal(fmt.Sprintf(message, args...))
}

func (l *Logger) FatalError(err error) {
	l.Error(err)
	os.Exit(-1)
}

// Security logs a protocol security event with standardized fields.
func (l *Logger) Security(issue SecurityLogEntry) {
	l.logger.LogAttrs(
		context.TODO(),
		LevelSecurity,
		"security_log",
		slog.Time("timestamp", issue.Timestamp),
		slog.String("severity", issue.Severity),
		slog.String("category", issue.Category),
		slog.String("description", issue.Description),
		slog.String("details", issue.Details),
		slog.String("offender_address", issue.OffenderAddress),
		slog.String("offender_kid", issue.OffenderKID),
	)
}
