// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import "github.com/puzpuzpuz/xsync/v3"

// ConnectionRegistry is the live-connection table, keyed by owning client.
//
// The zero value is not ready to use; construct using [NewConnectionRegistry].
type ConnectionRegistry struct {
	conns *xsync.MapOf[*Client, *Connection]
}

// DefaultConnectionRegistry is the process-wide [*ConnectionRegistry].
var DefaultConnectionRegistry = NewConnectionRegistry()

// NewConnectionRegistry creates an empty [*ConnectionRegistry].
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: xsync.NewMapOf[*Client, *Connection]()}
}

// Publish installs conn as the live connection of its client, replacing
// any previous entry, which is returned.
func (r *ConnectionRegistry) Publish(conn *Connection) (prev *Connection) {
	prev, loaded := r.conns.LoadAndStore(conn.client, conn)
	if !loaded {
		liveConnections.Inc()
	}
	if prev == conn {
		prev = nil
	}
	return
}

// Lookup returns the live connection of client.
func (r *ConnectionRegistry) Lookup(client *Client) (*Connection, bool) {
	return r.conns.Load(client)
}

// Remove deletes conn only if it is still the live connection of its client.
func (r *ConnectionRegistry) Remove(conn *Connection) bool {
	removed := false
	r.conns.Compute(conn.client, func(cur *Connection, loaded bool) (*Connection, bool) {
		if loaded && cur == conn {
			removed = true
			return nil, true
		}
		return cur, !loaded
	})
	if removed {
		liveConnections.Dec()
	}
	return removed
}

// Len returns the number of live connections.
func (r *ConnectionRegistry) Len() int {
	return r.conns.Size()
}
