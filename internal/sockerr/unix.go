//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/errclass/unix.go
//

package sockerr

import "golang.org/x/sys/unix"

// ICMP errors that a connected datagram socket reports on the next read.
var icmpErrors = []error{
	unix.ECONNREFUSED,
	unix.EHOSTUNREACH,
	unix.ENETUNREACH,
}
