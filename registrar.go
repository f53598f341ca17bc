// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"log/slog"

	"github.com/bassosimone/safeconn"
)

// ConnectionEventHandler is optionally implemented by a [QuestProcessor]
// that wants to observe the connection lifecycle.
type ConnectionEventHandler interface {
	// Connected is called once the connection is published, before it
	// joins the engine.
	Connected(info *ConnectionInfo)

	// ConnectionWillClose is called before the socket is closed.
	ConnectionWillClose(info *ConnectionInfo, causedByError bool)
}

// prepareConnection publishes a connection for the bound snapshot and
// joins it to the engine. On join failure the connection is closed
// asynchronously and prepareConnection returns false; resetting the client
// state is left to the caller.
func (c *Client) prepareConnection(bound *ConnectionInfo) bool {
	conn := newConnection(c, bound)
	c.connectedEvent(conn)

	if !c.Engine.JoinPoll(conn) {
		c.Logger.Error(
			"joinPollFailed",
			slog.String("connection", bound.String()),
			slog.String("localAddr", safeconn.LocalAddr(bound.Conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(bound.Conn)),
			slog.Time("t", c.TimeNow()),
		)
		c.errorAndWillBeClosed(conn)
		return false
	}

	c.Logger.Info(
		"joinPollDone",
		slog.String("connection", bound.String()),
		slog.String("localAddr", safeconn.LocalAddr(bound.Conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(bound.Conn)),
		slog.Time("t", c.TimeNow()),
	)
	return true
}

// connectedEvent publishes conn and notifies the processor.
func (c *Client) connectedEvent(conn *Connection) {
	if prev := c.Registry.Publish(conn); prev != nil && !prev.Closed() {
		c.Logger.Warn(
			"connectionReplaced",
			slog.String("previous", prev.info.String()),
			slog.String("connection", conn.info.String()),
		)
	}
	if handler, ok := c.QuestProcessor.(ConnectionEventHandler); ok {
		handler.Connected(conn.info)
	}
}

// errorAndWillBeClosed closes a half-built connection in the background.
func (c *Client) errorAndWillBeClosed(conn *Connection) {
	go c.willClose(conn, true)
}

// willClose unpublishes conn, notifies the processor and closes the socket.
// Only the first call for a given conn has effect.
func (c *Client) willClose(conn *Connection, causedByError bool) error {
	if conn.closing.Swap(true) {
		return ErrConnectionClosed
	}
	c.Registry.Remove(conn)
	if handler, ok := c.QuestProcessor.(ConnectionEventHandler); ok {
		handler.ConnectionWillClose(conn.info, causedByError)
	}
	return conn.close()
}
