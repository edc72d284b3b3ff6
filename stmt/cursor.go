package stmt

import (
	"context"

	"github.com/quaydb/pgxec/engine"
	"github.com/quaydb/pgxec/result"
	"github.com/quaydb/pgxec/wire"
)

// envelopeSink appends one further Execute(portal, fetchSize)+Sync batch's
// rows directly into an already-returned result.Envelope, for FetchMore.
type envelopeSink struct {
	env       *result.Envelope
	bytes     int64
	suspended bool
	err       *wire.PgError
}

func (s *envelopeSink) OnRows(fields []wire.FieldDescription) {}

func (s *envelopeSink) OnDataRow(row [][]byte) {
	s.env.Rows = append(s.env.Rows, row)
	for _, col := range row {
		s.bytes += int64(len(col))
	}
}

func (s *envelopeSink) OnPortalSuspended() { s.suspended = true }

func (s *envelopeSink) OnCommandStatus(tag string, updateCount int64, hasCount bool) {
	s.env.HasUpdateCount = hasCount
	s.env.UpdateCount = updateCount
}

func (s *envelopeSink) OnEmptyQuery() {}

func (s *envelopeSink) OnWarning(n wire.NoticeResponse) {}

func (s *envelopeSink) OnError(pe *wire.PgError) { s.err = pe }

// armCursor records the portal a just-finished execution suspended (if
// any) so a later FetchMore can resume it, per spec.md §4.6 ("on
// PortalSuspended, the ResultSet records the suspended portal and fetches
// subsequent batches by further Execute(portal, fetchSize)+Sync on
// demand").
func (s *Statement) armCursor(chain *result.Chain, fetchSize int32, sizer *engine.FetchSizer) {
	head := chain.Head()
	if head == nil || head.Cursor == nil || !head.Cursor.Suspended {
		return
	}
	head.Cursor.Portal = engine.UnnamedPortal
	head.Cursor.FetchSize = fetchSize

	s.mu.Lock()
	s.cursors[engine.UnnamedPortal] = &engine.Portal{Name: engine.UnnamedPortal, Sizer: sizer, Suspended: true}
	s.mu.Unlock()
}

// FetchMore resumes a forward cursor env suspended by a prior execution,
// appending its next batch of rows in place. It is a no-op if env is not a
// suspended, un-exhausted cursor result.
func (s *Statement) FetchMore(ctx context.Context, env *result.Envelope) error {
	if env == nil || env.Cursor == nil || !env.Cursor.Suspended || env.Cursor.Exhausted {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newError(wire.KindObjectNotInState, "statement is closed")
	}
	portal, ok := s.cursors[env.Cursor.Portal]
	eng := s.eng
	s.mu.Unlock()
	if !ok {
		return newError(wire.KindObjectNotInState, "no open cursor for portal %q", env.Cursor.Portal)
	}

	sink := &envelopeSink{env: env}
	before := len(env.Rows)
	rowLimit := portal.Sizer.Next()
	if err := eng.Fetch(ctx, portal.Name, rowLimit, sink); err != nil {
		return err
	}
	portal.Sizer.ObserveBatch(len(env.Rows)-before, sink.bytes)

	env.Cursor.Suspended = sink.suspended
	if !sink.suspended {
		env.Cursor.Exhausted = true
		s.mu.Lock()
		delete(s.cursors, env.Cursor.Portal)
		s.mu.Unlock()
	}
	if sink.err != nil {
		return wrapError(sink.err.Kind, sink.err, "fetch more rows from portal %q", portal.Name)
	}
	return nil
}
