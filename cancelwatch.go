// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewCancelWatchFunc(cfg *Config, logger SLogger) *CancelWatchFunc {
	return &CancelWatchFunc{Logger: logger, TimeNow: cfg.TimeNow}
}

// CancelWatchFunc closes the socket when the context passed to
// [*Client.Connect] is done.
//
// A [*Client] does not install it by default, because the connect context
// normally bounds socket creation only. Command line tools compose it after
// [*Client.ObserveConn] so that ^C tears the connection down: the engine
// observes the read failure and reports the connection as lost.
//
// Closing the returned conn unregisters the watcher.
type CancelWatchFunc struct {
	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call implements [Func].
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		op.Logger.Info(
			"cancelWatchClose",
			slog.Any("err", context.Cause(ctx)),
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
			slog.Time("t", op.TimeNow()),
		)
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
