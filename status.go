// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

// ConnStatus is the lifecycle state of a [*Client] connection.
type ConnStatus uint8

const (
	// NoConnected means there is no usable socket.
	NoConnected ConnStatus = iota

	// Connecting means exactly one goroutine is acquiring a socket.
	Connecting

	// Connected means the socket is bound and joined to the engine.
	Connected
)

// String returns the string representation of the ConnStatus.
func (s ConnStatus) String() string {
	switch s {
	case NoConnected:
		return "NoConnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}
