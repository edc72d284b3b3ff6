package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParameterMapSetGet(t *testing.T) {
	m := New()
	_, ok := m.Get("client_encoding")
	require.False(t, ok)

	m.Set("client_encoding", "UTF8")
	v, ok := m.Get("client_encoding")
	require.True(t, ok)
	require.Equal(t, "UTF8", v)
}

func TestParameterMapRollbackRestoresPreTransactionValue(t *testing.T) {
	m := New()
	m.Set("application_name", "")

	// BEGIN; SET application_name='X' — engine applies the server's
	// ParameterStatus immediately, same as outside a transaction.
	m.Set("application_name", "X")
	v, _ := m.Get("application_name")
	require.Equal(t, "X", v)

	// ROLLBACK — server re-sends the parameter with its pre-transaction
	// value, and the engine applies it the same way.
	m.Set("application_name", "")
	v, _ = m.Get("application_name")
	require.Equal(t, "", v)
}

func TestParameterMapSnapshotMutationDoesNotAffectMap(t *testing.T) {
	m := New()
	m.Set("DateStyle", "ISO, MDY")

	snap := m.Snapshot()
	snap["DateStyle"] = "SQL, MDY"

	v, _ := m.Get("DateStyle")
	require.Equal(t, "ISO, MDY", v, "mutating the snapshot must not affect the map")
}
