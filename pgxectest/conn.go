package pgxectest

import (
	"github.com/quaydb/pgxec/pgxecconn"
	"github.com/quaydb/pgxec/transport"
)

// NewConnection builds a *pgxecconn.Connection directly over mt, bypassing
// Connect's dial+auth handshake, for package tests that only need the
// statement/session/cache wiring above an in-memory transport.
func NewConnection(mt transport.Transport) *pgxecconn.Connection {
	return pgxecconn.NewTestConnection(mt, 16)
}
