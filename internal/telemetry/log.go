// Package telemetry provides the structured logger shared by OpStore, Tree,
// and UndoRedo. It follows the github.com/sirupsen/logrus
// log.WithFields(log.Fields{...}) call pattern used by the tree-store
// component this module's Tree materializer is modeled on.
package telemetry

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Logger is the narrow surface OpStore, Tree, and UndoRedo depend on
// (NewOpStore, NewTree, NewUndoRedo all take a Logger, not a *log.Logger),
// so a future substitute logging backend only needs to satisfy this one
// method rather than the whole logrus.Logger surface.
type Logger interface {
	WithFields(fields log.Fields) *log.Entry
}

// New returns a logrus.Logger configured for this module: text formatting,
// level taken from the ARBOR_LOG_LEVEL environment variable (defaulting to
// "info"), writing to stderr so stdout stays free for CLI output.
func New() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(levelFromEnv())
	return logger
}

// Discard returns a logger that drops everything, for tests that do not
// care about log output but still need to satisfy the Logger interface.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(discardWriter{})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func levelFromEnv() log.Level {
	switch os.Getenv("ARBOR_LOG_LEVEL") {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
