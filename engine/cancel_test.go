package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quaydb/pgxec/transport"
)

func TestCancelStateCancelInIdleIsNoop(t *testing.T) {
	c := NewCancelState()
	require.False(t, c.Cancel())
}

func TestCancelStateFullLifecycle(t *testing.T) {
	c := NewCancelState()
	c.BeginExecute()
	require.True(t, c.Cancel())
	require.False(t, c.IsCancelled())

	c.AckCancelled()
	require.True(t, c.IsCancelled())

	c.FinishExecute()
	require.False(t, c.IsCancelled())
}

func TestCancelStateTwoConcurrentCancelsCoalesce(t *testing.T) {
	c := NewCancelState()
	c.BeginExecute()

	first := c.Cancel()
	second := c.Cancel()
	require.True(t, first)
	require.False(t, second)
}

func TestCancelStateFinishExecuteWaitsForCancelingToResolve(t *testing.T) {
	c := NewCancelState()
	c.BeginExecute()
	require.True(t, c.Cancel())

	done := make(chan struct{})
	go func() {
		c.FinishExecute()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("FinishExecute returned before AckCancelled")
	case <-time.After(20 * time.Millisecond):
	}

	c.AckCancelled()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FinishExecute did not return after AckCancelled")
	}
}

func TestCancelStateExecuteDoneFromInQueryGoesStraightToIdle(t *testing.T) {
	c := NewCancelState()
	c.BeginExecute()
	c.FinishExecute()
	require.False(t, c.IsCancelled())
	// A fresh Cancel() should again succeed since we're back at IDLE→IN_QUERY.
	c.BeginExecute()
	require.True(t, c.Cancel())
}

func TestDispatchCancelSendsCancelRequestOnFreshAuxiliaryConnection(t *testing.T) {
	main := transport.NewMockTransport()
	aux := transport.NewMockTransport()
	main.WithAuxiliary(func() (transport.Transport, error) { return aux, nil })

	err := DispatchCancel(context.Background(), main, 42, 99)
	require.NoError(t, err)
	require.Equal(t, 0, main.SendCallCount())
	require.Equal(t, 1, aux.SendCallCount())
}
