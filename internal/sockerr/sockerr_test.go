// SPDX-License-Identifier: GPL-3.0-or-later

package sockerr

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsICMP(t *testing.T) {
	for _, target := range icmpErrors {
		wrapped := &net.OpError{Op: "read", Net: "udp", Err: os.NewSyscallError("recvfrom", target)}
		assert.True(t, IsICMP(wrapped), target.Error())
	}

	assert.False(t, IsICMP(nil))
	assert.False(t, IsICMP(net.ErrClosed))
	assert.False(t, IsICMP(errors.New("mocked error")))
}
