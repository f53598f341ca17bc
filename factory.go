// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
)

// Factory errors.
var (
	ErrInvalidEndpoint = errors.New("udprpc: invalid endpoint")
	ErrInvalidPort     = errors.New("udprpc: invalid port")
	ErrNoAddress       = errors.New("udprpc: host has no addresses")
)

// NewUDPClient creates an unconnected [*Client] toward host and port.
//
// The host is either an IP literal or a name resolved once, here, using
// [Config.Resolver]; the first returned address wins and selects the family.
// IPv4-mapped IPv6 addresses are treated as IPv4.
//
// The cfg argument contains the common configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewUDPClient(ctx context.Context, cfg *Config, host string, port int, autoReconnect bool, logger SLogger) (*Client, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	addr, err := lookupHost(ctx, cfg, host, logger)
	if err != nil {
		return nil, err
	}
	addr = addr.Unmap()
	return newClient(cfg, addr.String(), uint16(port), addr.Is4(), autoReconnect, logger), nil
}

// NewUDPClientFromEndpoint is like [NewUDPClient] but takes a "host:port"
// endpoint, with IPv6 literals enclosed in brackets.
func NewUDPClientFromEndpoint(ctx context.Context, cfg *Config, endpoint string, autoReconnect bool, logger SLogger) (*Client, error) {
	host, sport, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	port, err := strconv.Atoi(sport)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, endpoint, ErrInvalidPort)
	}
	return NewUDPClient(ctx, cfg, host, port, autoReconnect, logger)
}

func lookupHost(ctx context.Context, cfg *Config, host string, logger SLogger) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}

	t0 := cfg.TimeNow()
	logger.Info("lookupHostStart", slog.String("host", host), slog.Time("t", t0))

	addrs, err := cfg.Resolver.LookupNetIP(ctx, "ip", host)
	if err == nil && len(addrs) <= 0 {
		err = fmt.Errorf("%w: %s", ErrNoAddress, host)
	}

	logger.Info(
		"lookupHostDone",
		slog.Any("addrs", addrs),
		slog.Any("err", err),
		slog.String("errClass", cfg.ErrClassifier.Classify(err)),
		slog.String("host", host),
		slog.Time("t0", t0),
		slog.Time("t", cfg.TimeNow()),
	)

	if err != nil {
		return netip.Addr{}, err
	}
	return addrs[0], nil
}
