// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"fmt"
	"net"
	"sync/atomic"
)

// tokenCounter hands out per-connection tokens.
var tokenCounter atomic.Uint64

// ConnectionInfo identifies one logical connection.
//
// A ConnectionInfo is an immutable snapshot: once a [*Client] installs it,
// no field changes. Attaching or clearing a socket produces a fresh snapshot,
// so staleness is detected by comparing pointers, never field values.
type ConnectionInfo struct {
	// IP is the textual peer IP.
	IP string

	// Port is the peer port.
	Port uint16

	// IPv4 selects the IPv4 family when true, IPv6 otherwise.
	IPv4 bool

	// UDP is true once a datagram socket is attached.
	UDP bool

	// Token is an opaque per-connection token.
	Token uint64

	// Peer is the resolved peer address, or nil without a socket.
	Peer PeerAddress

	// Conn is the connected datagram socket, or nil without a socket.
	Conn net.Conn
}

// newConnectionInfo creates a snapshot without a socket.
func newConnectionInfo(ip string, port uint16, ipv4 bool) *ConnectionInfo {
	return &ConnectionInfo{
		IP:    ip,
		Port:  port,
		IPv4:  ipv4,
		Token: tokenCounter.Add(1),
	}
}

// Family returns the address family selected by IPv4.
func (ci *ConnectionInfo) Family() AddressFamily {
	if ci.IPv4 {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// Socket returns whether a socket is attached.
func (ci *ConnectionInfo) Socket() bool {
	return ci.Conn != nil
}

// bind returns a fresh snapshot carrying conn and peer and marked as UDP.
func (ci *ConnectionInfo) bind(conn net.Conn, peer PeerAddress) *ConnectionInfo {
	return &ConnectionInfo{
		IP:    ci.IP,
		Port:  ci.Port,
		IPv4:  ci.IPv4,
		UDP:   true,
		Token: tokenCounter.Add(1),
		Peer:  peer,
		Conn:  conn,
	}
}

// reset returns a fresh snapshot with the same identity and no socket.
func (ci *ConnectionInfo) reset() *ConnectionInfo {
	return newConnectionInfo(ci.IP, ci.Port, ci.IPv4)
}

// String returns a description suitable for logging.
func (ci *ConnectionInfo) String() string {
	transport := "unbound"
	if ci.UDP {
		transport = "UDP"
	}
	return fmt.Sprintf("token: %d, address: %s, %s, %s",
		ci.Token, netipJoin(ci.IP, ci.Port), ci.Family(), transport)
}
