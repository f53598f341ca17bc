// SPDX-License-Identifier: GPL-3.0-or-later

// Package udprpc implements the client side of a UDP RPC transport.
//
// # Connections
//
// A [*Client] owns at most one connected datagram socket toward a fixed
// peer. Construct it with [NewUDPClient] or [NewUDPClientFromEndpoint] and
// call [*Client.Connect]. Connecting a UDP socket performs no handshake, so
// success means the peer address is bound, not that the peer is reachable.
//
// Connect may be called from many goroutines. The client moves through
// [NoConnected], [Connecting] and [Connected]; exactly one goroutine at a
// time holds Connecting while the others wait for its outcome. A failed
// attempt always leaves the client in NoConnected with a socket-less
// [*ConnectionInfo].
//
// Socket acquisition is a pipeline of three [Func] stages that tests and
// callers can replace individually:
//
//   - [ResolveFunc]: parses the peer IP into a [PeerAddress]
//   - [ConnectFunc]: creates a "udp4" or "udp6" socket connected to the peer
//   - [ObserveConnFunc]: wraps the socket to log its I/O
//
// [CancelWatchFunc] may be composed after them with [Compose2] to close the
// socket when the connect context is done.
//
// # Engine and dispatch
//
// A connected socket joins an [Engine], by default the process-wide
// [DefaultPollEngine], which reads inbound datagrams. Answers are delivered
// to the pending [*Client.SendQuest] call with the same sequence number.
// Quests are handed to [*Client.DealQuest], which runs the client's
// [QuestProcessor] on a [WorkerPool], never on the reader goroutine.
//
// When the pool is full, a two-way quest is answered at once with a
// [CodeWorkQueueFull] error so that the peer can back off; a one-way quest
// is dropped. When the pool is exiting, every quest is dropped.
//
// Clients without a dedicated pool use the shared pool, which the program
// starts with [StartSharedQuestPool] and stops with [StopSharedQuestPool].
//
// # Observability
//
// All components log through [SLogger], which [*slog.Logger] satisfies.
// By default logging is disabled. Lifecycle events come in *Start/*Done
// pairs carrying t0, t, err and errClass; per-datagram I/O events are
// emitted at [slog.LevelDebug]. The clientConnectStart and clientConnectDone
// events of an attempt share a spanID generated by [NewSpanID].
//
// Connect outcomes and dispatch decisions are also counted by Prometheus
// metrics registered with the default registry.
package udprpc
