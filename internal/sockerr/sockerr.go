// SPDX-License-Identifier: GPL-3.0-or-later

// Package sockerr classifies socket errors of connected datagram sockets.
package sockerr

import "errors"

// IsICMP reports whether err was caused by an ICMP error for a datagram
// sent earlier. Such errors do not invalidate the socket.
func IsICMP(err error) bool {
	for _, target := range icmpErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
