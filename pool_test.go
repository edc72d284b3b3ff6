package pgxec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quaydb/pgxec/pgxecconn"
	"github.com/quaydb/pgxec/pgxectest"
	"github.com/quaydb/pgxec/transport"
)

func mockFactory() func(ctx context.Context) (*pgxecconn.Connection, error) {
	return func(ctx context.Context) (*pgxecconn.Connection, error) {
		return pgxectest.NewConnection(transport.NewMockTransport()), nil
	}
}

func TestPoolInitializeOpensMinIdleConnections(t *testing.T) {
	p := NewPool(mockFactory(), 2, 5, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))

	stats := p.Stats()
	require.EqualValues(t, 2, stats.TotalConnections.Load())
	require.EqualValues(t, 2, stats.IdleConnections.Load())

	require.NoError(t, p.Close(context.Background()))
}

func TestPoolGetReusesIdleConnectionBeforeOpeningNew(t *testing.T) {
	p := NewPool(mockFactory(), 1, 3, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Close(context.Background())

	conn, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	stats := p.Stats()
	require.EqualValues(t, 1, stats.Hits.Load())
	require.EqualValues(t, 1, stats.ActiveConnections.Load())
}

func TestPoolGetOpensNewConnectionWhenUnderMaxOpenAndNoIdle(t *testing.T) {
	p := NewPool(mockFactory(), 0, 3, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Close(context.Background())

	conn, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	stats := p.Stats()
	require.EqualValues(t, 1, stats.Misses.Load())
	require.EqualValues(t, 1, stats.TotalConnections.Load())
}

func TestPoolPutReturnsConnectionForReuse(t *testing.T) {
	p := NewPool(mockFactory(), 0, 3, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Close(context.Background())

	conn, err := p.Get(context.Background())
	require.NoError(t, err)
	p.Put(conn)

	stats := p.Stats()
	require.EqualValues(t, 0, stats.ActiveConnections.Load())
	require.EqualValues(t, 1, stats.IdleConnections.Load())
}

func TestPoolGetAfterCloseFails(t *testing.T) {
	p := NewPool(mockFactory(), 1, 3, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	_, err := p.Get(context.Background())
	require.Error(t, err)
}

func TestPoolCloseClosesIdleConnections(t *testing.T) {
	p := NewPool(mockFactory(), 2, 2, time.Hour, time.Hour)
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()), "a second Close must be a no-op")
}
