// Package engine drives the PostgreSQL extended query protocol over a
// single transport.Transport, per spec.md §4.6: Parse/Bind/Describe/
// Execute/Sync in the extended path, or a single Query in simple mode,
// dispatching the reply stream to a result.Sink and the session parameter
// map.
package engine

import (
	"context"
	"sync"

	"github.com/quaydb/pgxec/cache"
	"github.com/quaydb/pgxec/params"
	"github.com/quaydb/pgxec/result"
	"github.com/quaydb/pgxec/session"
	"github.com/quaydb/pgxec/transport"
	"github.com/quaydb/pgxec/wire"
)

// Engine is single-threaded by contract: every exported method serializes
// on mu, the connection-level lock of spec.md §5. A Statement's own lock
// nests inside it; cancel() deliberately never takes mu.
type Engine struct {
	t transport.Transport

	mu          sync.Mutex
	sessionMap  *session.ParameterMap
	cancelState *CancelState

	backendPID int32
	secretKey  int32

	// autocommit and txStatus back the SUPPRESS_BEGIN/FORWARD_CURSOR
	// decisions of spec.md §4.5: autocommit defaults to on (matching a
	// fresh Postgres session), and txStatus mirrors the TxStatus byte of the
	// most recent ReadyForQuery so an implicit BEGIN is never sent twice.
	autocommit bool
	txStatus   byte

	deferredCloses []string
}

// New returns an Engine driving t, publishing ParameterStatus updates into
// sessionMap.
func New(t transport.Transport, sessionMap *session.ParameterMap) *Engine {
	return &Engine{t: t, sessionMap: sessionMap, cancelState: NewCancelState(), autocommit: true}
}

// Autocommit reports whether the connection is in autocommit mode.
func (e *Engine) Autocommit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autocommit
}

// SetAutocommit toggles autocommit mode. With it off, Execute wraps the
// first statement of a transaction in an implicit BEGIN unless the caller
// passes SuppressBegin (spec.md §4.5).
func (e *Engine) SetAutocommit(on bool) {
	e.mu.Lock()
	e.autocommit = on
	e.mu.Unlock()
}

// CancelState exposes the engine's cancel state machine so Statement.cancel
// can drive it without acquiring the connection lock.
func (e *Engine) CancelState() *CancelState { return e.cancelState }

// SetBackendKeyData records the PID/secret pair a CancelRequest must carry;
// it is normally learned from the BackendKeyData message observed during
// ReadStartupTail.
func (e *Engine) SetBackendKeyData(pid, secret int32) {
	e.backendPID = pid
	e.secretKey = secret
}

// Cancel requests cancellation of whatever execution is currently in
// flight on this connection. Per spec.md §4.5/§5 it takes only the atomic
// CancelState (never the Statement lock the blocked execute holds) plus a
// freshly opened auxiliary connection — never the connection lock mu.
func (e *Engine) Cancel(ctx context.Context) error {
	if !e.cancelState.Cancel() {
		return nil
	}
	return DispatchCancel(ctx, e.t, e.backendPID, e.secretKey)
}

// QueueDeferredClose records a server-prepared statement name the cache
// evicted while it might still be named on the server; the next Execute
// call flushes a Close(statement) for it ahead of its own messages
// (spec.md §4.2, §4.6).
func (e *Engine) QueueDeferredClose(name string) {
	e.mu.Lock()
	e.deferredCloses = append(e.deferredCloses, name)
	e.mu.Unlock()
}

// ReadStartupTail drains ParameterStatus/BackendKeyData/ReadyForQuery
// following a successful AuthNegotiator.Negotiate handshake (auth itself
// is an external transport concern per spec.md §1; Negotiate returns as
// soon as the server accepts credentials, before the tail of the startup
// sequence arrives).
func (e *Engine) ReadStartupTail(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.drainUntilReadyForQuery(ctx, nil)
	return err
}

// Execute drives one execution of q/sql against params pl under flags,
// dispatching the reply into sink. rowLimit is the Execute row limit: 0
// for "fetch all", or FetchSizer.Next() under ForwardCursor.
func (e *Engine) Execute(ctx context.Context, q *cache.CachedQuery, sql string, pl *params.List, flags Flags, rowLimit int32, sink result.Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelState.BeginExecute()
	defer e.cancelState.FinishExecute()

	if err := e.flushDeferredClosesLocked(ctx); err != nil {
		return err
	}
	if err := e.beginImplicitTransactionLocked(ctx, flags); err != nil {
		return err
	}

	if flags.Has(ExecuteAsSimple) {
		return e.executeSimpleLocked(ctx, sql, sink)
	}
	return e.executeExtendedLocked(ctx, q, sql, pl, flags, rowLimit, sink)
}

// beginImplicitTransactionLocked sends a bare "BEGIN" ahead of a statement
// that needs one: autocommit is off, the caller hasn't set SuppressBegin,
// and the last observed TxStatus wasn't already inside a transaction
// block (spec.md §4.5 SUPPRESS_BEGIN). Caller holds e.mu.
func (e *Engine) beginImplicitTransactionLocked(ctx context.Context, flags Flags) error {
	if e.autocommit || flags.Has(SuppressBegin) || e.txStatus == wire.TxInBlock || e.txStatus == wire.TxInFailed {
		return nil
	}
	if err := e.t.Send(ctx, wire.EncodeQuery("BEGIN")); err != nil {
		return err
	}
	_, err := e.drainUntilReadyForQuery(ctx, nil)
	return err
}

// UnnamedPortal is the portal name Execute binds every statement to; pgxec
// never names a portal, so a suspended forward cursor is always resumed by
// re-targeting this same name.
const UnnamedPortal = ""

// Fetch drives a further Execute(portal, rowLimit)+Sync for a suspended
// cursor portal, per spec.md §4.6 cursor mode.
func (e *Engine) Fetch(ctx context.Context, portal string, rowLimit int32, sink result.Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelState.BeginExecute()
	defer e.cancelState.FinishExecute()

	if err := e.t.Send(ctx, wire.EncodeExecute(portal, rowLimit)); err != nil {
		return err
	}
	if err := e.t.Send(ctx, wire.EncodeSync()); err != nil {
		return err
	}
	_, err := e.drainUntilReadyForQuery(ctx, sink)
	return err
}

// ClosePortal closes a named portal, e.g. once a cursor is exhausted or the
// caller abandons it early.
func (e *Engine) ClosePortal(ctx context.Context, portal string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.t.Send(ctx, wire.EncodeClosePortal(portal)); err != nil {
		return err
	}
	if err := e.t.Send(ctx, wire.EncodeSync()); err != nil {
		return err
	}
	_, err := e.drainUntilReadyForQuery(ctx, nil)
	return err
}

// CloseStatement closes a named prepared statement immediately, bypassing
// the deferred-close queue (used when the cache itself, not an eviction,
// decides to drop a promoted query).
func (e *Engine) CloseStatement(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.t.Send(ctx, wire.EncodeCloseStatement(name)); err != nil {
		return err
	}
	if err := e.t.Send(ctx, wire.EncodeSync()); err != nil {
		return err
	}
	_, err := e.drainUntilReadyForQuery(ctx, nil)
	return err
}

func (e *Engine) flushDeferredClosesLocked(ctx context.Context) error {
	if len(e.deferredCloses) == 0 {
		return nil
	}
	for _, name := range e.deferredCloses {
		if err := e.t.Send(ctx, wire.EncodeCloseStatement(name)); err != nil {
			return err
		}
	}
	if err := e.t.Send(ctx, wire.EncodeSync()); err != nil {
		return err
	}
	if _, err := e.drainUntilReadyForQuery(ctx, nil); err != nil {
		return err
	}
	e.deferredCloses = e.deferredCloses[:0]
	return nil
}

func (e *Engine) executeSimpleLocked(ctx context.Context, sql string, sink result.Sink) error {
	if err := e.t.Send(ctx, wire.EncodeQuery(sql)); err != nil {
		return err
	}
	_, err := e.drainUntilReadyForQuery(ctx, sink)
	return err
}

func (e *Engine) executeExtendedLocked(ctx context.Context, q *cache.CachedQuery, sql string, pl *params.List, flags Flags, rowLimit int32, sink result.Sink) error {
	const unnamedPortal = UnnamedPortal
	statementName := ""
	if q != nil {
		statementName = q.ServerName()
	}

	if statementName == "" {
		if err := e.t.Send(ctx, wire.EncodeParse(statementName, sql, pl.OIDs())); err != nil {
			return err
		}
	}

	values := pl.Values()
	formats := pl.Formats()
	bindParams := make([]wire.BindParam, len(values))
	for i := range bindParams {
		bindParams[i] = wire.BindParam{Value: values[i], Format: formats[i]}
	}

	var resultFormats []int16
	if flags.Has(NoBinaryTransfer) {
		resultFormats = []int16{wire.FormatText}
	}

	if err := e.t.Send(ctx, wire.EncodeBind(unnamedPortal, statementName, bindParams, resultFormats)); err != nil {
		return err
	}

	if flags.Has(DescribeOnly) || flags.Has(ForceDescribePortal) {
		if err := e.t.Send(ctx, wire.EncodeDescribe(wire.DescribePortal, unnamedPortal)); err != nil {
			return err
		}
	}

	if !flags.Has(DescribeOnly) {
		if err := e.t.Send(ctx, wire.EncodeExecute(unnamedPortal, rowLimit)); err != nil {
			return err
		}
	}
	if err := e.t.Send(ctx, wire.EncodeSync()); err != nil {
		return err
	}

	if _, err := e.drainUntilReadyForQuery(ctx, sink); err != nil {
		return err
	}
	if q != nil {
		q.IncrementExecuteCount()
	}
	return nil
}

// drainUntilReadyForQuery reads and dispatches backend messages until
// ReadyForQuery, per spec.md §4.6/§7: ParameterStatus updates the session
// map, ErrorResponse is classified and reported to sink but does not abort
// the drain (the server itself ends the aborted exchange at
// ReadyForQuery), and a query_canceled error observed here acks the
// CancelState.
func (e *Engine) drainUntilReadyForQuery(ctx context.Context, sink result.Sink) (*wire.PgError, error) {
	var pe *wire.PgError
	for {
		f, err := e.t.Recv(ctx)
		if err != nil {
			return pe, err
		}
		msg, err := wire.Decode(f)
		if err != nil {
			return pe, err
		}

		switch m := msg.(type) {
		case wire.RowDescription:
			if sink != nil {
				sink.OnRows(m.Fields)
			}
		case wire.DataRow:
			if sink != nil {
				sink.OnDataRow(m.Values)
			}
		case wire.CommandComplete:
			if sink != nil {
				sink.OnCommandStatus(m.Tag, m.UpdateCount, m.HasCount)
			}
		case wire.EmptyQueryResponseMsg:
			if sink != nil {
				sink.OnEmptyQuery()
			}
		case wire.PortalSuspendedMsg:
			if sink != nil {
				sink.OnPortalSuspended()
			}
		case wire.ErrorResponse:
			pe = wire.ClassifyError(m)
			if sink != nil {
				sink.OnError(pe)
			}
		case wire.NoticeResponse:
			if sink != nil {
				sink.OnWarning(m)
			}
		case wire.ParameterStatus:
			e.sessionMap.Set(m.Name, m.Value)
		case wire.BackendKeyData:
			e.backendPID, e.secretKey = m.ProcessID, m.SecretKey
		case wire.ReadyForQuery:
			e.txStatus = m.TxStatus
			if pe != nil && pe.Kind == wire.KindQueryCanceled {
				e.cancelState.AckCancelled()
			}
			return pe, nil
		case wire.ParseComplete, wire.BindComplete, wire.CloseComplete, wire.NoDataMsg, wire.ParameterDescription, wire.AuthenticationRequest:
			// protocol bookkeeping only; nothing to dispatch.
		}
	}
}
