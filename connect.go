//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/connect.go
//

package udprpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// ErrNoSocket indicates that a [Dialer] returned neither a connection nor an error.
var ErrNoSocket = errors.New("udprpc: dialer returned no socket")

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*ConnectFunc] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectFunc returns a new [*ConnectFunc] using [Config.Dialer].
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectFunc creates a datagram socket and connects it to a [PeerAddress].
//
// Connecting a UDP socket performs no handshake: it fixes the peer so that
// later reads and writes need no per-packet addressing. The network ("udp4"
// or "udp6") follows the family of the peer.
//
// Returns either a valid [net.Conn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// Dialer is the [Dialer] to use.
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[PeerAddress, net.Conn] = &ConnectFunc{}

// Call creates a socket connected to peer.
func (op *ConnectFunc) Call(ctx context.Context, peer PeerAddress) (net.Conn, error) {
	network, address := peer.Network(), peer.String()
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(network, address, t0, deadline)

	conn, err := op.Dialer.DialContext(ctx, network, address)
	switch {
	case err != nil && conn != nil:
		conn.Close()
		conn = nil
	case err == nil && conn == nil:
		err = ErrNoSocket
	}

	op.logConnectDone(network, address, t0, deadline, conn, err)
	return conn, err
}

func (op *ConnectFunc) logConnectStart(network, address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	network, address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
