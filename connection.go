// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrConnectionClosed indicates that the connection was closed.
var ErrConnectionClosed = errors.New("udprpc: connection closed")

// Connection binds a connected datagram socket to its owning [*Client].
//
// The engine reads from the socket and the client writes to it through
// the engine. A Connection is created by a successful connect attempt and
// is never reused after close.
type Connection struct {
	client    *Client
	closed    atomic.Bool
	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
	exited    atomic.Bool
	info      *ConnectionInfo
	pending   *xsync.MapOf[uint32, chan *Answer]
}

// newConnection creates a [*Connection] for an info carrying a socket.
func newConnection(client *Client, info *ConnectionInfo) *Connection {
	return &Connection{
		client:  client,
		done:    make(chan struct{}),
		info:    info,
		pending: xsync.NewMapOf[uint32, chan *Answer](),
	}
}

// Info returns the snapshot this connection was created for.
func (c *Connection) Info() *ConnectionInfo {
	return c.info
}

// Client returns the owning client.
func (c *Connection) Client() *Client {
	return c.client
}

// Closed returns whether the socket has been closed.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// expectAnswer registers a callback slot for a two-way quest.
func (c *Connection) expectAnswer(seq uint32) chan *Answer {
	ch := make(chan *Answer, 1)
	c.pending.Store(seq, ch)
	return ch
}

// forgetAnswer drops the callback slot of seq.
func (c *Connection) forgetAnswer(seq uint32) {
	c.pending.Delete(seq)
}

// deliverAnswer hands answer to the waiting quest and returns false when
// nobody waits for it.
func (c *Connection) deliverAnswer(answer *Answer) bool {
	ch, found := c.pending.LoadAndDelete(answer.Seq)
	if !found {
		return false
	}
	ch <- answer
	return true
}

// clearQuestCallbacks fails every pending quest with an error answer.
func (c *Connection) clearQuestCallbacks(code ErrorCode) {
	c.pending.Range(func(seq uint32, ch chan *Answer) bool {
		if _, found := c.pending.LoadAndDelete(seq); found {
			ch <- &Answer{Seq: seq, Code: code, Message: "connection closed"}
		}
		return true
	})
}

// close closes the socket once.
func (c *Connection) close() (err error) {
	err = ErrConnectionClosed
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.info.Conn.Close()
	})
	return
}
