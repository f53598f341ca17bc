//go:build !unix && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package sockerr

// Without socket error numbers no read error is known to come from ICMP.
var icmpErrors []error
