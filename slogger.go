//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/slogger.go
//

package udprpc

// SLogger abstracts the [*slog.Logger] behavior.
//
// By using an abstraction we allow for unit testing and alternative implementations.
//
// This package uses four log levels:
//   - Debug for per-datagram I/O events (read, write, set deadline)
//   - Info for lifecycle events (resolve, connect, join, close)
//   - Warn for quests that could not be handed to a worker pool
//   - Error for failures that lose a quest or break an invariant
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default is a no-op logger that discards all output. This follows the
// library convention of not writing to stdout/stderr unless explicitly configured.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

// discardSLogger is a no-op [SLogger] that discards all log messages.
type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {}

// Warn implements [SLogger].
func (discardSLogger) Warn(msg string, args ...any) {}

// Error implements [SLogger].
func (discardSLogger) Error(msg string, args ...any) {}
