package pgxecconn

import (
	"testing"

	"github.com/quaydb/pgxec/transport"
	"github.com/stretchr/testify/require"
)

// newTestConnection builds a Connection over a MockTransport without going
// through Connect's dial+auth sequence, for tests that only exercise the
// statement/session/cache wiring.
func newTestConnection(mt transport.Transport) *Connection {
	return NewTestConnection(mt, 16)
}

func TestNewStatementSharesConnectionCacheAndEngine(t *testing.T) {
	mt := transport.NewMockTransport()
	c := newTestConnection(mt)

	s1 := c.NewStatement()
	s2 := c.NewStatement()
	require.NotSame(t, s1, s2)
}

func TestCloseSendsTerminateAndIsIdempotent(t *testing.T) {
	mt := transport.NewMockTransport()
	c := newTestConnection(mt)

	require.NoError(t, c.Close())
	require.Equal(t, 1, mt.SendCallCount())

	require.NoError(t, c.Close())
	require.Equal(t, 1, mt.SendCallCount(), "a second Close must not resend Terminate")
}

func TestRemoteAddrAndIsAliveDelegateToTransport(t *testing.T) {
	mt := transport.NewMockTransport()
	c := newTestConnection(mt)

	require.True(t, c.IsAlive())
	require.NotEmpty(t, c.RemoteAddr())
}

func TestSessionReturnsTheSharedParameterMap(t *testing.T) {
	mt := transport.NewMockTransport()
	c := newTestConnection(mt)

	c.sess.Set("application_name", "pgxec")
	v, ok := c.Session().Get("application_name")
	require.True(t, ok)
	require.Equal(t, "pgxec", v)
}
