package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quaydb/pgxec/wire"
)

func TestMockTransportSendRecv(t *testing.T) {
	tr := NewMockTransport()
	tr.QueueFrame(wire.Frame{Tag: wire.ParseCompleteTag})

	err := tr.Send(context.Background(), []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 1, tr.SendCallCount())
	require.Equal(t, [][]byte{[]byte("hello")}, tr.SendHistory())

	f, err := tr.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.ParseCompleteTag, f.Tag)
}

func TestMockTransportRecvEmptyQueueErrors(t *testing.T) {
	tr := NewMockTransport()
	_, err := tr.Recv(context.Background())
	require.Error(t, err)
}

func TestMockTransportCloseRejectsFurtherUse(t *testing.T) {
	tr := NewMockTransport()
	require.NoError(t, tr.Close())
	require.Error(t, tr.Send(context.Background(), []byte("x")))
	require.False(t, tr.IsAlive())
}

func TestMockTransportOpenAuxiliaryDefaultsToFreshMock(t *testing.T) {
	tr := NewMockTransport()
	aux, err := tr.OpenAuxiliary(context.Background())
	require.NoError(t, err)
	require.NotSame(t, tr, aux)
}

func TestMockTransportOpenAuxiliaryUsesFactory(t *testing.T) {
	tr := NewMockTransport()
	sentinel := NewMockTransport().WithHealthy(false)
	tr.WithAuxiliary(func() (Transport, error) { return sentinel, nil })

	aux, err := tr.OpenAuxiliary(context.Background())
	require.NoError(t, err)
	require.False(t, aux.IsAlive())
}

func TestMockTransportSendError(t *testing.T) {
	tr := NewMockTransport().WithSendError(context.DeadlineExceeded)
	err := tr.Send(context.Background(), []byte("x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
