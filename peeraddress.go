// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"time"
)

// ErrInvalidAddress indicates that a textual IP could not be resolved
// into a [PeerAddress] of the requested family.
var ErrInvalidAddress = errors.New("udprpc: invalid peer address")

// AddressFamily is the family of a [PeerAddress].
type AddressFamily int

const (
	// FamilyIPv4 selects IPv4 peers and the "udp4" network.
	FamilyIPv4 AddressFamily = iota

	// FamilyIPv6 selects IPv6 peers and the "udp6" network.
	FamilyIPv6
)

// String returns the string representation of the family.
func (f AddressFamily) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "Unknown"
	}
}

// PeerAddress is a resolved remote endpoint.
//
// The only implementations are [IPv4PeerAddress] and [IPv6PeerAddress].
type PeerAddress interface {
	// AddrPort returns the endpoint as a [netip.AddrPort].
	AddrPort() netip.AddrPort

	// Family returns the address family.
	Family() AddressFamily

	// Network returns "udp4" or "udp6".
	Network() string

	// String returns the endpoint formatted for dialing.
	String() string

	peerAddress()
}

// IPv4PeerAddress is an IPv4 endpoint.
type IPv4PeerAddress struct {
	Addr [4]byte
	Port uint16
}

var _ PeerAddress = IPv4PeerAddress{}

// AddrPort implements [PeerAddress].
func (a IPv4PeerAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), a.Port)
}

// Family implements [PeerAddress].
func (IPv4PeerAddress) Family() AddressFamily { return FamilyIPv4 }

// Network implements [PeerAddress].
func (IPv4PeerAddress) Network() string { return "udp4" }

// String implements [PeerAddress].
func (a IPv4PeerAddress) String() string { return a.AddrPort().String() }

func (IPv4PeerAddress) peerAddress() {}

// IPv6PeerAddress is an IPv6 endpoint.
type IPv6PeerAddress struct {
	Addr [16]byte
	Zone string
	Port uint16
}

var _ PeerAddress = IPv6PeerAddress{}

// AddrPort implements [PeerAddress].
func (a IPv6PeerAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(a.Addr).WithZone(a.Zone), a.Port)
}

// Family implements [PeerAddress].
func (IPv6PeerAddress) Family() AddressFamily { return FamilyIPv6 }

// Network implements [PeerAddress].
func (IPv6PeerAddress) Network() string { return "udp6" }

// String implements [PeerAddress].
func (a IPv6PeerAddress) String() string { return a.AddrPort().String() }

func (IPv6PeerAddress) peerAddress() {}

// ResolvePeerAddress parses ip for the given family and binds it to port.
//
// IPv4 accepts dotted-quad literals only and rejects 255.255.255.255, which
// classic resolvers return as their "no address" marker. IPv6 accepts any
// IPv6 literal, including IPv4-mapped ones, but rejects dotted-quad literals.
//
// Errors wrap [ErrInvalidAddress].
func ResolvePeerAddress(family AddressFamily, ip string, port uint16) (PeerAddress, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidAddress, family, err.Error())
	}
	switch family {
	case FamilyIPv4:
		if !addr.Is4() || addr.Zone() != "" {
			return nil, fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidAddress, ip)
		}
		if addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
			return nil, fmt.Errorf("%w: %s is the none address", ErrInvalidAddress, ip)
		}
		return IPv4PeerAddress{Addr: addr.As4(), Port: port}, nil

	case FamilyIPv6:
		if !addr.Is6() {
			return nil, fmt.Errorf("%w: %s is not an IPv6 address", ErrInvalidAddress, ip)
		}
		return IPv6PeerAddress{Addr: addr.As16(), Zone: addr.Zone(), Port: port}, nil

	default:
		return nil, fmt.Errorf("%w: unknown family %d", ErrInvalidAddress, int(family))
	}
}

// NewResolveFunc returns a new [*ResolveFunc].
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewResolveFunc(cfg *Config, logger SLogger) *ResolveFunc {
	return &ResolveFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ResolveFunc resolves the identity fields of a [*ConnectionInfo] into a [PeerAddress].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ResolveFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[*ConnectionInfo, PeerAddress] = &ResolveFunc{}

// Call resolves info's IP, port and family.
func (op *ResolveFunc) Call(ctx context.Context, info *ConnectionInfo) (PeerAddress, error) {
	t0 := op.TimeNow()
	family := info.Family()
	address := netipJoin(info.IP, info.Port)
	op.Logger.Info(
		"resolveStart",
		slog.String("family", family.String()),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)

	peer, err := ResolvePeerAddress(family, info.IP, info.Port)

	op.Logger.Info(
		"resolveDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("family", family.String()),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return peer, err
}

// netipJoin formats ip and port for logging without validating ip.
func netipJoin(ip string, port uint16) string {
	if addr, err := netip.ParseAddr(ip); err == nil {
		return netip.AddrPortFrom(addr, port).String()
	}
	return ip + ":" + strconv.Itoa(int(port))
}
