//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/observeconn.go
//

package udprpc

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnFunc returns a new [*ObserveConnFunc].
//
// The logger argument is the [SLogger] to use for structured logging.
func NewObserveConnFunc(cfg *Config, logger SLogger) *ObserveConnFunc {
	return &ObserveConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnFunc wraps a datagram socket to log every read, write,
// deadline change and close.
//
// Reads and writes are logged at [slog.LevelDebug] since a busy client
// produces one pair of events per datagram. Close is logged at Info.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ObserveConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &ObserveConnFunc{}

// Call wraps conn. It never fails.
func (op *ObserveConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	return &observedConn{
		Conn:     conn,
		laddr:    safeconn.LocalAddr(conn),
		op:       op,
		protocol: safeconn.Network(conn),
		raddr:    safeconn.RemoteAddr(conn),
	}, nil
}

// observedConn observes a datagram [net.Conn].
type observedConn struct {
	net.Conn
	closeonce sync.Once
	laddr     string
	op        *ObserveConnFunc
	protocol  string
	raddr     string
}

// endpoints returns the attributes shared by every event.
func (c *observedConn) endpoints(args ...any) []any {
	return append(args,
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
	)
}

// done returns the attributes shared by every *Done event.
func (c *observedConn) done(t0 time.Time, err error, args ...any) []any {
	args = append(args,
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)
	return c.endpoints(args...)
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed].
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info("closeStart", c.endpoints(slog.Time("t", t0))...)
		err = c.Conn.Close()
		c.op.Logger.Info("closeDone", c.done(t0, err)...)
	})
	return
}

// Read implements [net.Conn]. Each call returns at most one datagram.
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug("readStart", c.endpoints(slog.Int("ioBufferSize", len(buf)), slog.Time("t", t0))...)
	count, err := c.Conn.Read(buf)
	c.op.Logger.Debug("readDone", c.done(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

// Write implements [net.Conn]. Each call sends exactly one datagram.
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug("writeStart", c.endpoints(slog.Int("ioBufferSize", len(data)), slog.Time("t", t0))...)
	count, err := c.Conn.Write(data)
	c.op.Logger.Debug("writeDone", c.done(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	c.op.Logger.Debug("setDeadline", c.endpoints(slog.Time("deadline", t), slog.Time("t", c.op.TimeNow()))...)
	return c.Conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.op.Logger.Debug("setReadDeadline", c.endpoints(slog.Time("deadline", t), slog.Time("t", c.op.TimeNow()))...)
	return c.Conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	c.op.Logger.Debug("setWriteDeadline", c.endpoints(slog.Time("deadline", t), slog.Time("t", c.op.TimeNow()))...)
	return c.Conn.SetWriteDeadline(t)
}
