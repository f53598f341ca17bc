// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
)

// Client errors.
var (
	ErrConnectFailed = errors.New("udprpc: connect failed")
	ErrJoinFailed    = errors.New("udprpc: cannot join the engine")
	ErrNotConnected  = errors.New("udprpc: client not connected")
)

// Client is the client side of a UDP RPC transport.
//
// A Client owns at most one connected datagram socket toward a fixed peer.
// [*Client.Connect] is safe to call from many goroutines: at most one of
// them acquires a socket while the others wait for its outcome.
//
// Construct using [NewUDPClient] or [NewUDPClientFromEndpoint].
//
// All exported fields are safe to modify after construction but before first
// use. Fields must not be mutated concurrently with any method call.
type Client struct {
	// AutoReconnect makes [*Client.SendQuest] connect when not connected.
	AutoReconnect bool

	// DialPeer creates a socket connected to the resolved peer.
	//
	// Set by the constructor to a [*ConnectFunc].
	DialPeer Func[PeerAddress, net.Conn]

	// Engine is the event-multiplexing engine the socket joins.
	//
	// Set by the constructor from [Config.Engine].
	Engine Engine

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by the constructor from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by the constructor to the user-provided logger.
	Logger SLogger

	// ObserveConn wraps the socket after it has been connected.
	//
	// Set by the constructor to a [*ObserveConnFunc].
	ObserveConn Func[net.Conn, net.Conn]

	// QuestProcessPool is the dedicated pool for inbound quests. When nil,
	// quests go to the [SharedQuestPool].
	QuestProcessPool WorkerPool

	// QuestProcessor handles inbound quests. When nil, inbound quests are dropped.
	QuestProcessor QuestProcessor

	// QuestTimeout bounds [*Client.SendQuest] when the context has no deadline.
	//
	// Set by the constructor from [Config.QuestTimeout].
	QuestTimeout time.Duration

	// Registry is the live-connection table.
	//
	// Set by the constructor from [Config.Registry].
	Registry *ConnectionRegistry

	// ResolvePeer resolves the connection identity into a [PeerAddress].
	//
	// Set by the constructor to a [*ResolveFunc].
	ResolvePeer Func[*ConnectionInfo, PeerAddress]

	// TimeNow is the function to get the current time.
	//
	// Set by the constructor from [Config.TimeNow].
	TimeNow func() time.Time

	// beforeCommit runs between a successful attempt and its commit.
	beforeCommit func()

	mu        sync.Mutex
	cond      sync.Cond
	connected atomic.Bool
	info      *ConnectionInfo
	isIPv4    bool
	seq       atomic.Uint32
	status    ConnStatus
}

// newClient creates an unconnected [*Client] for ip and port.
func newClient(cfg *Config, ip string, port uint16, ipv4, autoReconnect bool, logger SLogger) *Client {
	c := &Client{
		AutoReconnect: autoReconnect,
		DialPeer:      NewConnectFunc(cfg, logger),
		Engine:        cfg.Engine,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		ObserveConn:   NewObserveConnFunc(cfg, logger),
		QuestTimeout:  cfg.QuestTimeout,
		Registry:      cfg.Registry,
		ResolvePeer:   NewResolveFunc(cfg, logger),
		TimeNow:       cfg.TimeNow,
		info:          newConnectionInfo(ip, port, ipv4),
		isIPv4:        ipv4,
		status:        NoConnected,
	}
	c.cond.L = &c.mu
	return c
}

// Connected returns whether the client believes it is connected.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Status returns the current [ConnStatus].
func (c *Client) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ConnectionInfo returns the currently installed snapshot.
func (c *Client) ConnectionInfo() *ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// IsIPv4 returns whether the client connects over IPv4.
func (c *Client) IsIPv4() bool {
	return c.isIPv4
}

// Connect makes sure the client has a connected socket joined to the engine.
//
// Connect returns nil immediately when already connected. When another
// goroutine is connecting, Connect waits without timeout for its outcome and,
// if that attempt failed, makes its own attempt. The context bounds socket
// creation only.
//
// On failure the client is left NoConnected with a socket-less snapshot.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	c.mu.Lock()
	for c.status == Connecting {
		c.cond.Wait()
	}
	if c.status == Connected {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.info
	c.connected.Store(false)
	c.status = Connecting
	c.mu.Unlock()

	spanID := NewSpanID()
	t0 := c.TimeNow()
	c.logConnectStart(spanID, snapshot, t0)
	connectAttempts.Inc()

	committed := false
	defer func() {
		if !committed {
			c.rollback(snapshot)
		}
	}()

	bound, err := c.acquire(ctx, snapshot)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnectFailed, snapshot, err)
		c.logConnectDone(spanID, snapshot, t0, err)
		connectResults.WithLabelValues("failed").Inc()
		return err
	}

	if !c.prepareConnection(bound) {
		err = fmt.Errorf("%w: %w: %s", ErrConnectFailed, ErrJoinFailed, bound)
		c.logConnectDone(spanID, bound, t0, err)
		connectResults.WithLabelValues("failed").Inc()
		return err
	}

	committed = true
	if c.beforeCommit != nil {
		c.beforeCommit()
	}

	c.mu.Lock()
	if c.info == snapshot {
		c.info = bound
		c.connected.Store(true)
		c.status = Connected
		c.cond.Broadcast()
		c.mu.Unlock()
		c.logConnectDone(spanID, bound, t0, nil)
		connectResults.WithLabelValues("ok").Inc()
		return nil
	}
	c.mu.Unlock()

	return c.superseded(spanID, bound)
}

// superseded handles an attempt whose snapshot is no longer installed,
// which the exclusivity of Connecting should make impossible. It tears the
// fresh connection down. When another path already moved the status, the
// attempt adopts that outcome. Otherwise it fails and leaves NoConnected.
func (c *Client) superseded(spanID string, bound *ConnectionInfo) error {
	c.Logger.Error(
		"connectInvariantViolated",
		slog.String("connection", bound.String()),
		slog.String("spanID", spanID),
		slog.Time("t", c.TimeNow()),
	)
	connectResults.WithLabelValues("superseded").Inc()

	if conn := c.Engine.TakeConnection(bound); conn != nil {
		c.Engine.ExitPoll(conn)
		conn.clearQuestCallbacks(CodeConnectionClosed)
		c.willClose(conn, false)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.cond.Broadcast()
	if c.status == Connecting {
		// Connecting still belongs to this attempt: nobody else may clear it.
		if c.info.Socket() {
			c.info = c.info.reset()
		}
		c.connected.Store(false)
		c.status = NoConnected
		return ErrConnectFailed
	}
	if c.status == Connected {
		return nil
	}
	return ErrConnectFailed
}

// rollback resets the client unless a newer snapshot replaced the one
// this attempt started from.
func (c *Client) rollback(snapshot *ConnectionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == snapshot {
		c.info = snapshot.reset()
		c.connected.Store(false)
		c.status = NoConnected
	}
	c.cond.Broadcast()
}

// acquire resolves the peer and returns a snapshot bound to a connected socket.
func (c *Client) acquire(ctx context.Context, snapshot *ConnectionInfo) (*ConnectionInfo, error) {
	peer, err := c.ResolvePeer.Call(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	conn, err := Compose2(c.DialPeer, c.ObserveConn).Call(ctx, peer)
	if err != nil {
		return nil, err
	}
	return snapshot.bind(conn, peer), nil
}

// ConnectWithRetry calls [*Client.Connect] up to attempts times, sleeping
// with jittered exponential backoff between failures.
func (c *Client) ConnectWithRetry(ctx context.Context, attempts int) error {
	b := &backoff.Backoff{
		Factor: 1.25,
		Jitter: true,
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
	}
	attempts = max(attempts, 1)
	var err error
	for i := range attempts {
		if err = c.Connect(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		duration := b.Duration()
		c.Logger.Info(
			"connectRetry",
			slog.Int("attempt", i+1),
			slog.Duration("backoff", duration),
			slog.Any("err", err),
			slog.String("errClass", c.ErrClassifier.Classify(err)),
		)
		timer := time.NewTimer(duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Close leaves the engine, fails pending quests, closes the socket, and
// returns the client to NoConnected. A later Connect may reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	for c.status == Connecting {
		c.cond.Wait()
	}
	if c.status != Connected {
		c.mu.Unlock()
		return nil
	}
	info := c.info
	c.info = info.reset()
	c.connected.Store(false)
	c.status = NoConnected
	c.cond.Broadcast()
	c.mu.Unlock()

	conn := c.Engine.TakeConnection(info)
	if conn == nil {
		return nil
	}
	c.Engine.ExitPoll(conn)
	conn.clearQuestCallbacks(CodeConnectionClosed)
	return c.willClose(conn, false)
}

// connectionLost is called by the engine after it dropped conn because
// its socket failed.
func (c *Client) connectionLost(conn *Connection, err error) {
	c.mu.Lock()
	if c.info == conn.info {
		c.info = conn.info.reset()
		c.connected.Store(false)
		c.status = NoConnected
		c.cond.Broadcast()
	}
	c.mu.Unlock()

	c.Logger.Warn(
		"connectionLost",
		slog.String("connection", conn.info.String()),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.Time("t", c.TimeNow()),
	)
	conn.clearQuestCallbacks(CodeConnectionClosed)
	c.willClose(conn, true)
}

// SendQuest sends quest and, for two-way quests, waits for its answer.
//
// SendQuest assigns quest.Seq. A one-way quest returns a nil answer. An error
// answer is returned together with its [*AnswerError]. Without a context
// deadline, the wait is bounded by QuestTimeout.
func (c *Client) SendQuest(ctx context.Context, quest *Quest) (*Answer, error) {
	if !c.connected.Load() {
		if !c.AutoReconnect {
			return nil, ErrNotConnected
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	conn, found := c.Registry.Lookup(c)
	if !found || conn.Closed() {
		return nil, ErrNotConnected
	}

	quest.Seq = c.seq.Add(1)
	raw, err := quest.Raw()
	if err != nil {
		return nil, err
	}
	if !quest.TwoWay {
		return nil, c.Engine.SendData(conn.info, raw)
	}

	ch := conn.expectAnswer(quest.Seq)
	defer conn.forgetAnswer(quest.Seq)
	if err := c.Engine.SendData(conn.info, raw); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && c.QuestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.QuestTimeout)
		defer cancel()
	}
	select {
	case answer := <-ch:
		return answer, answer.Err()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", &AnswerError{Code: CodeTimeout, Message: "quest timeout"}, ctx.Err())
	}
}

func (c *Client) logConnectStart(spanID string, info *ConnectionInfo, t0 time.Time) {
	c.Logger.Info(
		"clientConnectStart",
		slog.String("connection", info.String()),
		slog.String("spanID", spanID),
		slog.Time("t", t0),
	)
}

func (c *Client) logConnectDone(spanID string, info *ConnectionInfo, t0 time.Time, err error) {
	c.Logger.Info(
		"clientConnectDone",
		slog.String("connection", info.String()),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("spanID", spanID),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)
}
