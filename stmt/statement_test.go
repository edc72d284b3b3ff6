package stmt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quaydb/pgxec/cache"
	"github.com/quaydb/pgxec/engine"
	"github.com/quaydb/pgxec/params"
	"github.com/quaydb/pgxec/result"
	"github.com/quaydb/pgxec/rewrite"
	"github.com/quaydb/pgxec/session"
	"github.com/quaydb/pgxec/transport"
	"github.com/quaydb/pgxec/wire"
)

func cstringBytes(s string) []byte { return append([]byte(s), 0) }

func readyForQueryFrame() wire.Frame {
	return wire.Frame{Tag: wire.ReadyForQueryMsg, Body: []byte{wire.TxIdle}}
}

func commandCompleteFrame(tag string) wire.Frame {
	return wire.Frame{Tag: wire.CommandCompleteMsg, Body: cstringBytes(tag)}
}

func rowDescriptionFrame(names ...string) wire.Frame {
	body := []byte{0, byte(len(names))}
	for _, n := range names {
		body = append(body, cstringBytes(n)...)
		body = append(body, 0, 0, 0, 0)
		body = append(body, 0, 0)
		body = append(body, 0, 0, 0, 23)
		body = append(body, 0, 4)
		body = append(body, 0, 0, 0, 0)
		body = append(body, 0, 0)
	}
	return wire.Frame{Tag: wire.RowDescriptionMsg, Body: body}
}

func dataRowFrame(values ...string) wire.Frame {
	body := []byte{0, byte(len(values))}
	for _, v := range values {
		n := len(v)
		body = append(body, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		body = append(body, v...)
	}
	return wire.Frame{Tag: wire.DataRowMsg, Body: body}
}

func errorResponseFrame(sqlstate, message string) wire.Frame {
	var body []byte
	body = append(body, 'C')
	body = append(body, cstringBytes(sqlstate)...)
	body = append(body, 'M')
	body = append(body, cstringBytes(message)...)
	body = append(body, 0)
	return wire.Frame{Tag: wire.ErrorResponseMsg, Body: body}
}

func parseCompleteFrame() wire.Frame   { return wire.Frame{Tag: wire.ParseCompleteTag} }
func bindCompleteFrame() wire.Frame    { return wire.Frame{Tag: wire.BindCompleteTag} }
func portalSuspendedFrame() wire.Frame { return wire.Frame{Tag: wire.PortalSuspendedTag} }

func newStatement(mt transport.Transport) *Statement {
	sess := session.New()
	eng := engine.New(mt, sess)
	c := cache.New(16)
	return New(eng, c, rewrite.StyleNative)
}

func TestExecuteQueryReturnsSingleRowResult(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(commandCompleteFrame("SELECT 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	env, err := s.ExecuteQuery(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.True(t, env.IsRowResult())
	require.Len(t, env.Rows, 1)
}

func TestExecuteUpdateReturnsUpdateCount(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("UPDATE 3"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	n, err := s.ExecuteUpdate(context.Background(), "UPDATE t SET x = 1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestExecuteQueryOnNonRowResultReturnsNoData(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("UPDATE 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	_, err := s.ExecuteQuery(context.Background(), "UPDATE t SET x = 1")
	require.Error(t, err)
	var stErr *Error
	require.ErrorAs(t, err, &stErr)
	require.Equal(t, wire.KindNoData, stErr.Kind)
}

func TestExecutePreparedPromotesAfterThreshold(t *testing.T) {
	mt := transport.NewMockTransport()
	for i := 0; i < 3; i++ {
		mt.QueueFrame(parseCompleteFrame())
		mt.QueueFrame(bindCompleteFrame())
		mt.QueueFrame(commandCompleteFrame("SELECT 1"))
		mt.QueueFrame(readyForQueryFrame())
	}

	s := newStatement(mt)
	s.SetPrepareThreshold(2)

	pl := func() *params.List {
		p := params.NewList(1)
		require.NoError(t, p.Set(1, []byte("1"), wire.OIDInt4, wire.FormatText))
		return p
	}

	_, err := s.ExecutePrepared(context.Background(), "SELECT $1", pl())
	require.NoError(t, err)
	_, err = s.ExecutePrepared(context.Background(), "SELECT $1", pl())
	require.NoError(t, err)

	key := s.cacheKey("SELECT $1")
	cq, ok := s.cache.Lookup(key)
	require.True(t, ok)
	require.False(t, cq.IsPrepared(), "promotion only takes effect starting the execution after the threshold is reached")

	_, err = s.ExecutePrepared(context.Background(), "SELECT $1", pl())
	require.NoError(t, err)
	require.True(t, cq.IsPrepared())
}

func TestExecuteBatchReportsPerEntryUpdateCounts(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("UPDATE 1"))
	mt.QueueFrame(readyForQueryFrame())
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("UPDATE 2"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.AddBatch("UPDATE t SET x = 1", params.NewList(0))
	s.AddBatch("UPDATE u SET y = 2", params.NewList(0))

	res, err := s.ExecuteBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, res.Counts)
	require.Equal(t, -1, res.FailureIndex)
}

func TestExecuteBatchSumsUpdateCountsAcrossACompositeEntry(t *testing.T) {
	mt := transport.NewMockTransport()
	// entry 0: a 3-substatement composite SQL, each sub-statement its own
	// Parse/Bind/Execute/Sync round trip, 2+1+3 rows respectively.
	for _, tag := range []string{"INSERT 0 2", "INSERT 0 1", "INSERT 0 3"} {
		mt.QueueFrame(parseCompleteFrame())
		mt.QueueFrame(bindCompleteFrame())
		mt.QueueFrame(commandCompleteFrame(tag))
		mt.QueueFrame(readyForQueryFrame())
	}
	// entry 1: the same composite SQL again.
	for _, tag := range []string{"INSERT 0 2", "INSERT 0 1", "INSERT 0 3"} {
		mt.QueueFrame(parseCompleteFrame())
		mt.QueueFrame(bindCompleteFrame())
		mt.QueueFrame(commandCompleteFrame(tag))
		mt.QueueFrame(readyForQueryFrame())
	}

	s := newStatement(mt)
	sql := "INSERT INTO a VALUES (1); INSERT INTO b VALUES (2); INSERT INTO c VALUES (3)"
	s.AddBatch(sql, params.NewList(0))
	s.AddBatch(sql, params.NewList(0))

	res, err := s.ExecuteBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{6, 6}, res.Counts)
	require.Equal(t, -1, res.FailureIndex)
}

func TestExecuteBatchStopsRecordingAfterFirstFailureButContinuesEntries(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("UPDATE 1"))
	mt.QueueFrame(readyForQueryFrame())
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(errorResponseFrame("42601", "syntax error"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.AddBatch("UPDATE t SET x = 1", params.NewList(0))
	s.AddBatch("GARBAGE", params.NewList(0))

	res, err := s.ExecuteBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Counts[0])
	require.Equal(t, result.ExecuteFailed, res.Counts[1])
	require.Equal(t, 1, res.FailureIndex)
}

func TestFetchMoreResumesASuspendedCursorUntilExhausted(t *testing.T) {
	mt := transport.NewMockTransport()
	// autocommit off with no transaction observed yet means Execute opens
	// one with an implicit BEGIN before the real statement (spec.md §4.5).
	mt.QueueFrame(readyForQueryFrame())
	// initial Execute suspends after 2 rows instead of completing.
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(dataRowFrame("2"))
	mt.QueueFrame(portalSuspendedFrame())
	mt.QueueFrame(readyForQueryFrame())
	// FetchMore exhausts the portal on its next batch.
	mt.QueueFrame(dataRowFrame("3"))
	mt.QueueFrame(commandCompleteFrame("SELECT 3"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.SetFetchSize(2)
	s.eng.SetAutocommit(false) // FORWARD_CURSOR only engages outside autocommit (spec.md §4.5)

	env, err := s.ExecuteQuery(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.NotNil(t, env.Cursor)
	require.True(t, env.Cursor.Suspended)
	require.False(t, env.Cursor.Exhausted)
	require.Len(t, env.Rows, 2)

	err = s.FetchMore(context.Background(), env)
	require.NoError(t, err)
	require.False(t, env.Cursor.Suspended)
	require.True(t, env.Cursor.Exhausted)
	require.Len(t, env.Rows, 3)

	// Fetching again on an already-exhausted cursor is a safe no-op; no
	// frames are queued, so any real Send/Recv would fail the test.
	err = s.FetchMore(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, env.Rows, 3)
}

func TestGetMoreResultsAdvancesThroughACompositeChain(t *testing.T) {
	mt := transport.NewMockTransport()
	for _, tag := range []string{"INSERT 0 1", "INSERT 0 1"} {
		mt.QueueFrame(parseCompleteFrame())
		mt.QueueFrame(bindCompleteFrame())
		mt.QueueFrame(commandCompleteFrame(tag))
		mt.QueueFrame(readyForQueryFrame())
	}

	s := newStatement(mt)
	chain, err := s.ExecuteText(context.Background(), "INSERT INTO a VALUES (1); INSERT INTO b VALUES (1)")
	require.NoError(t, err)
	require.NotNil(t, chain.Head())
	require.NotNil(t, chain.Head().Next)

	want := chain.Head().Next
	got := s.GetMoreResults(KeepCurrent)
	require.Same(t, want, got)

	require.Nil(t, s.GetMoreResults(KeepCurrent))
}

func TestCancelDelegatesToEngineWithoutTakingStatementLock(t *testing.T) {
	mt := transport.NewMockTransport()
	aux := transport.NewMockTransport()
	mt.WithAuxiliary(func() (transport.Transport, error) { return aux, nil })

	s := newStatement(mt)
	s.eng.CancelState().BeginExecute()

	err := s.Cancel(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, aux.SendCallCount())
}

func TestCloseOnCompletionFiresExactlyOnce(t *testing.T) {
	mt := transport.NewMockTransport()
	s := newStatement(mt)
	s.CloseOnCompletion()

	s.closeIfArmed()
	require.True(t, s.closeLatch.isFired())
	require.True(t, s.closed)

	// Calling again must not panic or double-execute the close action.
	s.closeIfArmed()
	require.True(t, s.closed)
}

func TestCloseResultFiresCloseOnCompletionOnceTheLastOpenResultCloses(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(commandCompleteFrame("SELECT 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.CloseOnCompletion()

	env, err := s.ExecuteQuery(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.False(t, s.closed)

	s.CloseResult(env)
	require.True(t, s.closeLatch.isFired())
	require.True(t, s.closed)

	// Closing an already-closed envelope must not panic or re-fire.
	s.CloseResult(env)
	require.True(t, s.closed)
}

func TestRunWithRetryRejectsClosedStatement(t *testing.T) {
	mt := transport.NewMockTransport()
	s := newStatement(mt)
	require.NoError(t, s.Close())

	_, err := s.ExecuteText(context.Background(), "SELECT 1")
	require.Error(t, err)
	var stErr *Error
	require.ErrorAs(t, err, &stErr)
	require.Equal(t, wire.KindObjectNotInState, stErr.Kind)
}

func TestSliceParamsForSubQueryFillsUnreferencedSlotsWithNull(t *testing.T) {
	global := params.NewList(6)
	for i := 1; i <= 6; i++ {
		require.NoError(t, global.Set(i, []byte{byte(i)}, wire.OIDInt4, wire.FormatText))
	}

	sub := rewrite.SubQuery{
		Placeholders: []rewrite.Placeholder{{Slot: 3}, {Slot: 4}},
	}

	local := sliceParamsForSubQuery(global, sub)
	require.Equal(t, 4, local.Len())
	values := local.Values()
	require.Nil(t, values[0])
	require.Nil(t, values[1])
	require.Equal(t, []byte{3}, values[2])
	require.Equal(t, []byte{4}, values[3])
}

func TestSpliceValuesTuplesRenumbersAndConcatenates(t *testing.T) {
	sub := rewrite.SubQuery{
		SQL:         "INSERT INTO t (a, b) VALUES ($1, $2)",
		ValuesStart: 28,
		ValuesEnd:   36,
	}

	a := params.NewList(2)
	require.NoError(t, a.Set(1, []byte("1"), wire.OIDInt4, wire.FormatText))
	require.NoError(t, a.Set(2, []byte("2"), wire.OIDInt4, wire.FormatText))

	b := params.NewList(2)
	require.NoError(t, b.Set(1, []byte("3"), wire.OIDInt4, wire.FormatText))
	require.NoError(t, b.Set(2, []byte("4"), wire.OIDInt4, wire.FormatText))

	merged, pl := spliceValuesTuples(sub, []*params.List{a, b})
	require.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2),($3, $4)", merged)
	require.Equal(t, 4, pl.Len())
	values := pl.Values()
	require.Equal(t, []byte("1"), values[0])
	require.Equal(t, []byte("4"), values[3])
}

func TestExecuteQueryTruncatesRowsToMaxRows(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(dataRowFrame("2"))
	mt.QueueFrame(dataRowFrame("3"))
	mt.QueueFrame(commandCompleteFrame("SELECT 3"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.SetMaxRows(2)

	env, err := s.ExecuteQuery(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, env.Rows, 2)
}

func TestExecuteQueryDoesNotTruncateWhenMaxRowsUnset(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(dataRowFrame("2"))
	mt.QueueFrame(commandCompleteFrame("SELECT 2"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)

	env, err := s.ExecuteQuery(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, env.Rows, 2)
}

func TestExecuteUpdateCapturesGeneratedKeysWhenRequested(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("7"))
	mt.QueueFrame(commandCompleteFrame("INSERT 0 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.RequestGeneratedKeys("id")

	n, err := s.ExecuteUpdate(context.Background(), "INSERT INTO t (v) VALUES (1)")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	keys := s.GetGeneratedKeys()
	require.True(t, keys.IsRowResult())
	require.Len(t, keys.Rows, 1)
	require.Equal(t, [][]byte{[]byte("7")}, keys.Rows[0])

	// The request is one-shot: a second execution without re-arming sees
	// no generated keys at all.
	require.False(t, s.generatedKeysArmed)
}

func TestRequestGeneratedKeysIsOneShotAndDoesNotArmNextExecution(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("7"))
	mt.QueueFrame(commandCompleteFrame("INSERT 0 1"))
	mt.QueueFrame(readyForQueryFrame())
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(commandCompleteFrame("INSERT 0 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	s.RequestGeneratedKeys("id")

	_, err := s.ExecuteUpdate(context.Background(), "INSERT INTO t (v) VALUES (1)")
	require.NoError(t, err)

	n, err := s.ExecuteUpdate(context.Background(), "INSERT INTO t (v) VALUES (2)")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	keys := s.GetGeneratedKeys()
	require.False(t, keys.IsRowResult())
}

func TestClassifyTimeoutReclassifiesQueryCanceledWhenTimerFired(t *testing.T) {
	s := newStatement(transport.NewMockTransport())
	s.mu.Lock()
	s.timedOut = true
	s.mu.Unlock()

	chain := result.NewChain()
	chain.OnError(&wire.PgError{Kind: wire.KindQueryCanceled})

	s.classifyTimeout(chain)
	require.Equal(t, wire.KindStatementCanceledByTimeout, chain.Err.Kind)

	s.mu.Lock()
	fired := s.timedOut
	s.mu.Unlock()
	require.False(t, fired, "classifyTimeout should consume the flag")
}

func TestClassifyTimeoutLeavesCallerCanceledErrorAlone(t *testing.T) {
	s := newStatement(transport.NewMockTransport())

	chain := result.NewChain()
	chain.OnError(&wire.PgError{Kind: wire.KindQueryCanceled})

	s.classifyTimeout(chain)
	require.Equal(t, wire.KindQueryCanceled, chain.Err.Kind)
}

func TestStartQueryTimeoutFiresAfterDeadlineAndCancelsTheStatement(t *testing.T) {
	s := newStatement(transport.NewMockTransport())
	s.SetQueryTimeout(20)

	stop := s.startQueryTimeout()
	time.Sleep(150 * time.Millisecond)
	stop()

	s.mu.Lock()
	fired := s.timedOut
	s.mu.Unlock()
	require.True(t, fired)
}

func TestStartQueryTimeoutStoppedBeforeDeadlineNeverFires(t *testing.T) {
	s := newStatement(transport.NewMockTransport())
	s.SetQueryTimeout(1000)

	stop := s.startQueryTimeout()
	stop()
	time.Sleep(10 * time.Millisecond)

	s.mu.Lock()
	fired := s.timedOut
	s.mu.Unlock()
	require.False(t, fired)
}

func TestStartQueryTimeoutIsNoopWhenNoTimeoutConfigured(t *testing.T) {
	s := newStatement(transport.NewMockTransport())
	stop := s.startQueryTimeout()
	stop()
}

func TestSetReadOnlyGivesAReadOnlyExecutionItsOwnCacheEntry(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(commandCompleteFrame("SELECT 1"))
	mt.QueueFrame(readyForQueryFrame())
	mt.QueueFrame(parseCompleteFrame())
	mt.QueueFrame(bindCompleteFrame())
	mt.QueueFrame(rowDescriptionFrame("id"))
	mt.QueueFrame(dataRowFrame("1"))
	mt.QueueFrame(commandCompleteFrame("SELECT 1"))
	mt.QueueFrame(readyForQueryFrame())

	s := newStatement(mt)
	_, err := s.ExecuteQuery(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)

	s.SetReadOnly(true)
	_, err = s.ExecuteQuery(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)

	_, misses, _, _ := s.cache.Stats()
	require.Equal(t, int64(2), misses)
}
