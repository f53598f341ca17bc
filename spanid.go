// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying one connect attempt.
//
// The clientConnectStart and clientConnectDone events of an attempt carry
// the same spanID. To tag the events of the resolve and dial stages too,
// construct their logger with logger.With("spanID", spanID).
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
