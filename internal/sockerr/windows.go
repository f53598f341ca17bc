//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/errclass/windows.go
//

package sockerr

import "golang.org/x/sys/windows"

// ICMP errors that a connected datagram socket reports on the next read.
//
// Windows reports port unreachable as WSAECONNRESET on UDP sockets.
var icmpErrors = []error{
	windows.WSAECONNREFUSED,
	windows.WSAECONNRESET,
	windows.WSAEHOSTUNREACH,
	windows.WSAENETUNREACH,
}
