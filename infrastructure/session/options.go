package session

import (
	"context"
	"io"
	"net"

	"voicelink/application/logging"
	"voicelink/infrastructure/cryptography/identity"
	"voicelink/infrastructure/network/socket"
	"voicelink/infrastructure/settings"

	"github.com/benbjohnson/clock"
)

// Dialer opens the datagram socket to the server.
type Dialer interface {
	Dial(ctx context.Context, endpoint socket.Endpoint) (net.Conn, error)
}

// Options configure a Session. Only Connection is required.
type Options struct {
	Connection settings.Connection
	// Identity overrides Connection.Identity.
	Identity *identity.Identity
	Dialer   Dialer
	Clock    clock.Clock
	Logger   logging.Logger
	Rand     io.Reader
}
