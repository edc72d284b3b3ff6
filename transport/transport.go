// Package transport provides the byte-level connection abstraction the
// protocol engine drives; it is the "external transport collaborator" of
// spec.md §6 (TLS, socket I/O, SCRAM/channel-binding handshakes are
// explicitly out of scope for the engine itself, per §1).
package transport

import (
	"context"
	"time"

	"github.com/quaydb/pgxec/wire"
)

// Transport is the contract the protocol engine requires of a connection to
// a PostgreSQL-speaking backend, matching spec.md §6's
// send(frame_bytes)/recv()/openAuxiliary(authOpaque) trio. Grounded on the
// teacher's Transport interface (transport/transport.go), retargeted from
// byte-slice commands to wire.Frame messages.
type Transport interface {
	// Send writes a single framed message.
	Send(ctx context.Context, frameBytes []byte) error

	// Recv reads and returns the next framed backend message.
	Recv(ctx context.Context) (wire.Frame, error)

	// OpenAuxiliary opens a secondary transport for out-of-band cancel
	// delivery (§4.6, §6), authenticated the same way as the primary
	// connection.
	OpenAuxiliary(ctx context.Context) (Transport, error)

	// Close closes the transport.
	Close() error

	// RemoteAddr reports the remote endpoint, for logging.
	RemoteAddr() string

	// IsAlive reports whether the transport is still usable.
	IsAlive() bool

	// LastActivity reports the time of the last successful Send/Recv.
	LastActivity() time.Time
}

// Dialer opens a new Transport to a PostgreSQL backend.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// Metrics tracks transport performance and health, mirroring the teacher's
// TransportMetrics shape (transport/transport.go) so pool/health-check code
// can report the same fields against the new Transport contract.
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64
	BytesSent     int64
	BytesReceived int64
	LastError     error
	LastErrorTime time.Time
}
