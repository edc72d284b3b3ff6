package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/quaydb/pgxec/transport"
	"github.com/quaydb/pgxec/wire"
)

// cancel states, per spec.md §4.5's CancelState machine.
const (
	stateIdle int32 = iota
	stateInQuery
	stateCanceling
	stateCancelled
)

// CancelState is the lock-free state machine backing Statement.cancel();
// it is deliberately independent of the Statement and connection locks so
// that cancel() never blocks behind the execute it is trying to interrupt
// (spec.md §5).
type CancelState struct {
	state atomic.Int32
	mu    sync.Mutex
	cond  *sync.Cond
}

// NewCancelState returns a CancelState in IDLE.
func NewCancelState() *CancelState {
	c := &CancelState{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// BeginExecute transitions IDLE → IN_QUERY at the start of an execution.
func (c *CancelState) BeginExecute() { c.state.Store(stateInQuery) }

// Cancel attempts IN_QUERY → CANCELING via compare-and-swap. Calling it in
// IDLE, or while a cancel is already in flight, is a no-op; two concurrent
// cancels coalesce onto the same CAS winner.
func (c *CancelState) Cancel() bool {
	return c.state.CompareAndSwap(stateInQuery, stateCanceling)
}

// AckCancelled transitions CANCELING → CANCELLED once the server's
// ErrorResponse(query_canceled) has been observed, and wakes any
// FinishExecute waiting on it.
func (c *CancelState) AckCancelled() {
	c.mu.Lock()
	c.state.Store(stateCancelled)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// FinishExecute implements the executeDone transitions: IN_QUERY or
// CANCELLED go straight to IDLE; CANCELING blocks until AckCancelled moves
// the state to CANCELLED (absorbing a cancel that raced with completion),
// then moves to IDLE.
func (c *CancelState) FinishExecute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state.Load() == stateCanceling {
		c.cond.Wait()
	}
	c.state.Store(stateIdle)
}

// IsCancelled reports whether the state has reached CANCELLED.
func (c *CancelState) IsCancelled() bool { return c.state.Load() == stateCancelled }

// DispatchCancel opens a fresh auxiliary connection off main and sends a
// CancelRequest carrying the backend's PID and secret key, per spec.md
// §4.6/§6. The main connection is never touched.
func DispatchCancel(ctx context.Context, main transport.Transport, backendPID, secretKey int32) error {
	aux, err := main.OpenAuxiliary(ctx)
	if err != nil {
		return err
	}
	defer aux.Close()
	return aux.Send(ctx, wire.EncodeCancelRequest(backendPID, secretKey))
}
