// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// DefaultQuestTimeout is the default time [*Client.SendQuest] waits for an answer.
const DefaultQuestTimeout = 5 * time.Second

// Resolver abstracts the [*net.Resolver] behavior.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Config holds common configuration for clients.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// Engine is the event-multiplexing engine clients join.
	//
	// Set by [NewConfig] to [DefaultPollEngine].
	Engine Engine

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// QuestTimeout bounds [*Client.SendQuest] when the context has no deadline.
	//
	// Set by [NewConfig] to [DefaultQuestTimeout].
	QuestTimeout time.Duration

	// Registry is the live-connection table.
	//
	// Set by [NewConfig] to [DefaultConnectionRegistry].
	Registry *ConnectionRegistry

	// Resolver resolves host names passed to [NewUDPClient].
	//
	// Set by [NewConfig] to [net.DefaultResolver].
	Resolver Resolver

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		Engine:        DefaultPollEngine,
		ErrClassifier: DefaultErrClassifier,
		QuestTimeout:  DefaultQuestTimeout,
		Registry:      DefaultConnectionRegistry,
		Resolver:      net.DefaultResolver,
		TimeNow:       time.Now,
	}
}
