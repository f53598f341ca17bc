// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bassosimone/udprpc/internal/sockerr"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrConnectionNotFound indicates that the engine does not poll the connection.
var ErrConnectionNotFound = errors.New("udprpc: connection not found in engine")

// Engine multiplexes the sockets of many clients.
//
// The engine reads inbound datagrams, hands quests to the owning client
// through [*Client.DealQuest], and delivers answers to pending quests.
type Engine interface {
	// JoinPoll starts watching conn and returns false when it cannot.
	JoinPoll(conn *Connection) bool

	// ExitPoll stops watching conn. It does not close the socket.
	ExitPoll(conn *Connection)

	// TakeConnection removes and returns the connection for info, or nil.
	TakeConnection(info *ConnectionInfo) *Connection

	// SendData writes one datagram on the connection for info.
	SendData(info *ConnectionInfo, data []byte) error
}

// aLongTimeAgo is a deadline in the past that unblocks pending reads.
var aLongTimeAgo = time.Unix(1, 0)

// PollEngine is the default [Engine]. It runs one reader goroutine per
// connection on top of the runtime network poller.
//
// Construct using [NewPollEngine].
type PollEngine struct {
	// BufferSize is the size of the per-connection read buffer.
	//
	// Set by [NewPollEngine] to [MaxDatagramSize] plus one, so that
	// oversized datagrams are detected rather than truncated.
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewPollEngine] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewPollEngine] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewPollEngine] to [time.Now].
	TimeNow func() time.Time

	closed bool
	conns  *xsync.MapOf[*ConnectionInfo, *Connection]
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

var _ Engine = &PollEngine{}

// DefaultPollEngine is the process-wide [*PollEngine].
var DefaultPollEngine = NewPollEngine(DefaultSLogger())

// NewPollEngine creates a [*PollEngine] that logs using logger.
func NewPollEngine(logger SLogger) *PollEngine {
	return &PollEngine{
		BufferSize:    MaxDatagramSize + 1,
		ErrClassifier: DefaultErrClassifier,
		Logger:        logger,
		TimeNow:       time.Now,
		conns:         xsync.NewMapOf[*ConnectionInfo, *Connection](),
	}
}

// JoinPoll implements [Engine]. It returns false once [*PollEngine.Close]
// has been called.
func (e *PollEngine) JoinPoll(conn *Connection) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed || conn.Closed() || !conn.info.Socket() {
		return false
	}
	if _, loaded := e.conns.LoadOrStore(conn.info, conn); loaded {
		return false
	}
	e.wg.Add(1)
	go e.loop(conn)
	return true
}

// ExitPoll implements [Engine].
func (e *PollEngine) ExitPoll(conn *Connection) {
	conn.exited.Store(true)
	e.remove(conn)
	conn.info.Conn.SetReadDeadline(aLongTimeAgo)
}

// TakeConnection implements [Engine].
func (e *PollEngine) TakeConnection(info *ConnectionInfo) *Connection {
	conn, _ := e.conns.LoadAndDelete(info)
	return conn
}

// SendData implements [Engine].
func (e *PollEngine) SendData(info *ConnectionInfo, data []byte) error {
	conn, found := e.conns.Load(info)
	if !found {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, info)
	}
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(data))
	}
	_, err := conn.info.Conn.Write(data)
	return err
}

// Len returns the number of polled connections.
func (e *PollEngine) Len() int {
	return e.conns.Size()
}

// Close stops polling every connection and waits for the readers to return.
// Later joins are rejected. It does not close the sockets.
func (e *PollEngine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.conns.Range(func(_ *ConnectionInfo, conn *Connection) bool {
		e.ExitPoll(conn)
		return true
	})
	e.wg.Wait()
}

// remove deletes conn only if it is still the entry for its info.
func (e *PollEngine) remove(conn *Connection) (removed bool) {
	e.conns.Compute(conn.info, func(cur *Connection, loaded bool) (*Connection, bool) {
		if loaded && cur == conn {
			removed = true
			return nil, true
		}
		return cur, !loaded
	})
	return
}

func (e *PollEngine) loop(conn *Connection) {
	defer e.wg.Done()
	defer close(conn.done)

	buf := make([]byte, max(e.BufferSize, 1))
	for {
		count, err := conn.info.Conn.Read(buf)
		if conn.exited.Load() {
			return
		}

		switch {
		case sockerr.IsICMP(err):
			// triggered by a previous write; the socket is still usable
			continue

		case err != nil:
			if e.remove(conn) {
				conn.client.connectionLost(conn, err)
			}
			return
		}

		if count > MaxDatagramSize {
			e.logDiscard(conn, ErrPacketTooLarge)
			continue
		}
		e.dispatch(conn, buf[:count])
	}
}

func (e *PollEngine) dispatch(conn *Connection, packet []byte) {
	quest, answer, err := DecodePacket(packet)
	switch {
	case err != nil:
		e.logDiscard(conn, err)

	case quest != nil:
		conn.client.DealQuest(quest, conn.info)

	case !conn.deliverAnswer(answer):
		e.Logger.Warn(
			"answerUnmatched",
			slog.String("connection", conn.info.String()),
			slog.Int64("seq", int64(answer.Seq)),
			slog.Time("t", e.TimeNow()),
		)
	}
}

func (e *PollEngine) logDiscard(conn *Connection, err error) {
	e.Logger.Warn(
		"packetDiscarded",
		slog.String("connection", conn.info.String()),
		slog.Any("err", err),
		slog.String("errClass", e.ErrClassifier.Classify(err)),
		slog.Time("t", e.TimeNow()),
	)
}
