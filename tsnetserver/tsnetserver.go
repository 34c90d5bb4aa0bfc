// Package tsnetserver exposes the HTTP API on a Tailscale network, using an embedded tsnet node.
package tsnetserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"tailscale.com/tsnet"

	"github.com/italypaleale/timekeeper/config"
)

// TSNetServer is a node on the tailnet.
type TSNetServer struct {
	server   *tsnet.Server
	hostname string
}

// NewTSNetServer brings up a tsnet node using the Tailscale configuration.
// The auth key is only used on first startup, or when the node key has expired; if empty, it is read from the TS_AUTH_KEY env var.
func NewTSNetServer(ctx context.Context, log *slog.Logger, cfg config.TailscaleConfig) (*TSNetServer, error) {
	if log == nil {
		log = slog.Default()
	}
	tsLogger := log.With(slog.String("scope", "tsnet"))

	tsrv := &tsnet.Server{
		Hostname:  cfg.Hostname,
		AuthKey:   cfg.AuthKey,
		Dir:       cfg.StateDir,
		Ephemeral: cfg.Ephemeral,
		UserLogf: func(format string, args ...any) {
			tsLogger.Info(fmt.Sprintf(format, args...))
		},
		Logf: func(format string, args ...any) {
			tsLogger.Debug(fmt.Sprintf(format, args...))
		},
	}

	state, err := tsrv.Up(ctx)
	if err != nil {
		_ = tsrv.Close()
		return nil, fmt.Errorf("failed to bring up Tailscale node: %w", err)
	}

	return &TSNetServer{
		server:   tsrv,
		hostname: strings.TrimSuffix(state.Self.DNSName, "."),
	}, nil
}

// Hostname returns the full DNS name of the node in the tailnet.
func (t *TSNetServer) Hostname() string {
	return t.hostname
}

// Listen returns a TLS listener on the tailnet.
func (t *TSNetServer) Listen(port int) (net.Listener, error) {
	ln, err := t.server.ListenTLS("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("failed to create tsnet listener: %w", err)
	}

	return ln, nil
}

// Close shuts down the node.
func (t *TSNetServer) Close() error {
	err := t.server.Close()
	if err != nil {
		return fmt.Errorf("failed to close tsnet server: %w", err)
	}
	return nil
}
