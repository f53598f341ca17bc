// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSLogger(t *testing.T) {
	logger := DefaultSLogger()
	assert.NotNil(t, logger)

	// Discards output at every level without panicking
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

func TestSlogLoggerIsSLogger(t *testing.T) {
	var _ SLogger = slog.Default()
}
