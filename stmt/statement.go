// Package stmt implements the statement executor applications drive
// directly: executeText/executeUpdate/executeQuery/executePrepared,
// batching, cancellation, and the per-call tuning knobs of spec.md §4.5.
// Grounded on client/query.go's Statement (name/query/paramCount/closed/mu
// shape) generalized from the teacher's delimiter protocol to the
// Rewriter → Cache → Engine → Result pipeline.
package stmt

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quaydb/pgxec/cache"
	"github.com/quaydb/pgxec/engine"
	"github.com/quaydb/pgxec/params"
	"github.com/quaydb/pgxec/result"
	"github.com/quaydb/pgxec/rewrite"
	"github.com/quaydb/pgxec/wire"
)

// GetMoreResultsMode selects how getMoreResults advances the result chain.
type GetMoreResultsMode int

const (
	CloseCurrent GetMoreResultsMode = iota
	KeepCurrent
	CloseAll
)

// Statement is the tagged variant of spec.md §9's "base statement +
// prepared variants": a single executor record serving both uses.
// ExecutePrepared and AddBatch take a parameter list alongside the SQL
// text; no query is bound to the Statement itself.
type Statement struct {
	mu sync.Mutex

	eng   *engine.Engine
	cache *cache.QueryCache
	style rewrite.Style

	bound *cache.CachedQuery // not assigned by any method; queries are looked up by SQL text

	prepareThreshold int
	fetchSize        int32
	maxRows          int64
	adaptiveFetch    bool
	queryTimeoutMs   int
	readOnly         bool

	// execGeneration and timedOut back the query-timeout timer
	// (startQueryTimeout/classifyTimeout): each runWithRetry call bumps
	// execGeneration so a timer that fires after its execution already
	// finished recognizes it is stale and does nothing (spec.md §9's
	// weak-handle/token design).
	execGeneration int64
	timedOut       bool

	closeOnCompletionArmed bool
	closeLatch             closeLatch
	openResultSets         int

	batchSQL    []string
	batchParams []*params.List

	generatedKeysArmed   bool
	generatedKeysColumns []string
	generatedKeys        *result.Envelope

	chain   *result.Chain
	cursors map[string]*engine.Portal

	closed bool
}

// New returns a Statement driving eng, borrowing rewrites from c under the
// given placeholder style.
func New(eng *engine.Engine, c *cache.QueryCache, style rewrite.Style) *Statement {
	return &Statement{
		eng:              eng,
		cache:            c,
		style:            style,
		prepareThreshold: 5,
		fetchSize:        0,
		cursors:          make(map[string]*engine.Portal),
	}
}

func (s *Statement) SetQueryTimeout(ms int)    { s.mu.Lock(); s.queryTimeoutMs = ms; s.mu.Unlock() }
func (s *Statement) SetFetchSize(rows int32)   { s.mu.Lock(); s.fetchSize = rows; s.mu.Unlock() }
func (s *Statement) SetMaxRows(n int64)        { s.mu.Lock(); s.maxRows = n; s.mu.Unlock() }
func (s *Statement) SetPrepareThreshold(k int) {
	if k < 0 {
		k = 1 // a negative threshold behaves as a threshold of 1
	}
	s.mu.Lock()
	s.prepareThreshold = k
	s.mu.Unlock()
}
func (s *Statement) SetAdaptiveFetch(b bool)   { s.mu.Lock(); s.adaptiveFetch = b; s.mu.Unlock() }

// SetReadOnly carries a read-only declaration through to the engine as
// ReadOnlyHint and into the cache key, so a read-only and a read-write
// execution of the same SQL never share a server-prepared statement
// (spec.md §4.5).
func (s *Statement) SetReadOnly(b bool) { s.mu.Lock(); s.readOnly = b; s.mu.Unlock() }

// RequestGeneratedKeys arms generated-keys capture for the statement's
// next execution only: an INSERT/UPDATE/DELETE with no explicit RETURNING
// gains one projecting columns (or "*" when columns is empty), and the
// resulting row data is captured as getGeneratedKeys() instead of
// appearing in the visible result chain (spec.md §4.5).
func (s *Statement) RequestGeneratedKeys(columns ...string) {
	s.mu.Lock()
	s.generatedKeysArmed = true
	s.generatedKeysColumns = columns
	s.mu.Unlock()
}

// CloseOnCompletion arms automatic close once every open result set the
// statement owns has been closed (spec.md §4.5).
func (s *Statement) CloseOnCompletion() {
	s.mu.Lock()
	s.closeOnCompletionArmed = true
	s.mu.Unlock()
}

// Cancel requests cancellation of the execution currently in flight, per
// §4.5/§4.6. It deliberately does not take s.mu.
func (s *Statement) Cancel(ctx context.Context) error {
	return s.eng.Cancel(ctx)
}

// ExecuteText runs sql (expected to carry no placeholders) and exposes its
// result chain.
func (s *Statement) ExecuteText(ctx context.Context, sql string) (*result.Chain, error) {
	return s.runWithRetry(ctx, sql, nil, 0)
}

// ExecuteUpdate runs sql and returns the update count of the first envelope
// in its result chain; it fails with NO_DATA when that envelope is a row
// result or the chain is empty.
func (s *Statement) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	chain, err := s.runWithRetry(ctx, sql, nil, engine.NoResults)
	if err != nil {
		return 0, err
	}
	if chain.Err != nil {
		return 0, chain.Err
	}
	head := chain.Head()
	if head == nil || head.IsRowResult() {
		return 0, newError(wire.KindNoData, "executeUpdate produced no command status")
	}
	return head.UpdateCount, nil
}

// ExecuteQuery runs sql and requires exactly one row-stream result.
func (s *Statement) ExecuteQuery(ctx context.Context, sql string) (*result.Envelope, error) {
	chain, err := s.runWithRetry(ctx, sql, nil, 0)
	if err != nil {
		return nil, err
	}
	if chain.Err != nil {
		return nil, chain.Err
	}
	head := chain.Head()
	if head == nil || !head.IsRowResult() {
		return nil, newError(wire.KindNoData, "executeQuery produced no row result")
	}
	if head.Next != nil {
		return nil, newError(wire.KindTooManyResults, "executeQuery produced more than one result")
	}
	return head, nil
}

// ExecutePrepared executes sql with pl bound to its placeholders, borrowing
// sql's CachedQuery from the cache (the entry earlier executions of the
// same text used, if it is still cached).
func (s *Statement) ExecutePrepared(ctx context.Context, sql string, pl *params.List) (*result.Chain, error) {
	return s.runWithRetry(ctx, sql, pl, 0)
}

// AddBatch queues one batch entry: either a literal SQL string (sql != ""
// and pl == nil) or a bound parameter list against sql's CachedQuery.
func (s *Statement) AddBatch(sql string, pl *params.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSQL = append(s.batchSQL, sql)
	s.batchParams = append(s.batchParams, pl)
}

// ExecuteBatch runs every queued entry in order, merging consecutive
// entries that target the same isRewritableInsert CachedQuery into one
// execution when eligible (spec.md §4.5).
func (s *Statement) ExecuteBatch(ctx context.Context) (result.BatchResult, error) {
	s.mu.Lock()
	sqls := s.batchSQL
	pls := s.batchParams
	s.batchSQL = nil
	s.batchParams = nil
	s.mu.Unlock()

	bh := result.NewBatchHandler(len(sqls))
	i := 0
	for i < len(sqls) {
		group := s.mergeableGroup(ctx, sqls, pls, i)
		if group > 1 {
			if err := s.executeMergedGroup(ctx, bh, sqls[i], pls[i:i+group]); err != nil {
				return bh.Result(), err
			}
			bh.RecordMergedGroup(i, group)
			for k := 0; k < group; k++ {
				bh.Advance()
			}
			i += group
			continue
		}

		chain, err := s.runWithRetry(ctx, sqls[i], pls[i], engine.NoResults)
		if err != nil {
			return bh.Result(), err
		}
		if chain.Err != nil {
			bh.OnError(chain.Err)
		} else if head := chain.Head(); head != nil {
			var total int64
			hasCount := false
			for e := head; e != nil; e = e.Next {
				if e.HasUpdateCount {
					hasCount = true
					total += e.UpdateCount
				}
			}
			bh.OnCommandStatus("", total, hasCount)
		} else {
			bh.OnCommandStatus("", 0, false)
		}
		bh.Advance()
		i++
	}
	return bh.Result(), nil
}

// mergeableGroup reports how many consecutive entries starting at i target
// the same rewritable-INSERT SQL text and can be folded into one
// multi-tuple execution, capped so the merged Bind never exceeds 32767
// parameters (spec.md §4.5).
func (s *Statement) mergeableGroup(ctx context.Context, sqls []string, pls []*params.List, i int) int {
	key := s.cacheKey(sqls[i])
	cq, ok := s.cache.Lookup(key)
	if !ok {
		res, err := rewrite.Rewrite(sqls[i], s.style, rewrite.Options{EnableEscapeProcessing: true, UseParameterized: s.style != rewrite.StyleNone})
		if err != nil || len(res.SubQueries) != 1 || !res.SubQueries[0].IsRewritableInsert {
			return 1
		}
	} else if len(cq.Result.SubQueries) != 1 || !cq.Result.SubQueries[0].IsRewritableInsert {
		return 1
	}

	n := 1
	paramsPerEntry := len(pls[i].Values())
	if paramsPerEntry == 0 {
		return 1
	}
	for i+n < len(sqls) && sqls[i+n] == sqls[i] {
		if (n+1)*paramsPerEntry > 32767 {
			break
		}
		n++
	}
	return n
}

// executeMergedGroup splices entries' VALUES tuples together and executes
// once, reporting SUCCESS_NO_INFO for each entry via RecordMergedGroup.
func (s *Statement) executeMergedGroup(ctx context.Context, bh *result.BatchHandler, sql string, group []*params.List) error {
	key := s.cacheKey(sql)
	cq, err := s.cache.Borrow(key, func() (*rewrite.Result, error) {
		return rewrite.Rewrite(sql, s.style, rewrite.Options{EnableEscapeProcessing: true, UseParameterized: s.style != rewrite.StyleNone})
	})
	if err != nil {
		return wrapError(wire.KindSyntaxError, err, "rewrite sql for merged batch execution")
	}
	defer s.cache.Release(cq)

	sub := cq.Result.SubQueries[0]
	merged, pl := spliceValuesTuples(sub, group)

	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	return eng.Execute(ctx, nil, merged, pl, engine.NoResults, 0, bh)
}

// GetGeneratedKeys returns the result envelope captured as generated keys
// by the most recent execution, or an empty envelope if none was
// requested/produced.
func (s *Statement) GetGeneratedKeys() *result.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generatedKeys != nil {
		return s.generatedKeys
	}
	return &result.Envelope{}
}

// GetMoreResults advances the statement's result chain per mode, per
// spec.md §4.5: CloseCurrent closes the chain's current head (counting
// against firstUnclosedResult/closeOnCompletion) before advancing past it,
// KeepCurrent advances without closing it, and CloseAll closes every
// remaining envelope and discards the chain.
func (s *Statement) GetMoreResults(mode GetMoreResultsMode) *result.Envelope {
	s.mu.Lock()
	if s.chain == nil || s.chain.Head() == nil {
		s.mu.Unlock()
		return nil
	}

	switch mode {
	case CloseAll:
		for e := s.chain.Head(); e != nil; e = e.Next {
			s.closeResultLocked(e)
		}
		s.chain = nil
		s.mu.Unlock()
		s.closeIfArmed()
		return nil
	case CloseCurrent:
		s.closeResultLocked(s.chain.Head())
		next := s.chain.Advance()
		s.mu.Unlock()
		s.closeIfArmed()
		return next
	default: // KeepCurrent
		next := s.chain.Advance()
		s.mu.Unlock()
		return next
	}
}

// CloseResult closes a row-result envelope obtained from ExecuteQuery or
// GetMoreResults. Once every envelope opened by the current execution is
// closed, a pending CloseOnCompletion fires (spec.md §4.5). Safe to call on
// an already-closed or non-row envelope; both are no-ops.
func (s *Statement) CloseResult(env *result.Envelope) {
	s.mu.Lock()
	s.closeResultLocked(env)
	s.mu.Unlock()
	s.closeIfArmed()
}

// closeResultLocked marks env closed and decrements openResultSets exactly
// once per envelope. Caller holds s.mu.
func (s *Statement) closeResultLocked(env *result.Envelope) {
	if env == nil || env.Closed || !env.IsRowResult() {
		return
	}
	env.Closed = true
	if s.openResultSets > 0 {
		s.openResultSets--
	}
}

// Close marks the statement unusable: later executions fail with
// OBJECT_NOT_IN_STATE. It releases nothing else; a second call is a no-op.
func (s *Statement) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}

func (s *Statement) closeIfArmed() {
	s.mu.Lock()
	armed := s.closeOnCompletionArmed
	open := s.openResultSets
	s.mu.Unlock()
	if armed && open == 0 {
		s.closeLatch.fire(func() { s.Close() })
	}
}

func (s *Statement) cacheKey(sql string) cache.Key {
	s.mu.Lock()
	armed := s.generatedKeysArmed
	cols := s.generatedKeysColumns
	readOnly := s.readOnly
	s.mu.Unlock()
	return buildCacheKey(sql, s.style != rewrite.StyleNone, armed, cols, readOnly)
}

// buildCacheKey is the pure half of cacheKey, factored out so core() can
// build the same key from a single tuning-knob snapshot it already took
// under s.mu rather than re-locking.
func buildCacheKey(sql string, useParameterized, genKeysArmed bool, genKeysColumns []string, readOnly bool) cache.Key {
	spec := ""
	if genKeysArmed {
		spec = strings.Join(genKeysColumns, ",")
	}
	return cache.Key{
		SQL:                  sql,
		EscapeProcessing:     true,
		UseParameterized:     useParameterized,
		ReturningColumnsSpec: spec,
		ReadOnly:             readOnly,
	}
}

// runWithRetry drives one core execution, and for a non-composite query
// failing with a willHealOnRetry error, closes and re-prepares the
// CachedQuery and retries exactly once (spec.md §4.5).
func (s *Statement) runWithRetry(ctx context.Context, sql string, pl *params.List, flags engine.Flags) (*result.Chain, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, newError(wire.KindObjectNotInState, "statement is closed")
	}
	s.mu.Unlock()

	stop := s.startQueryTimeout()
	defer stop()

	chain, composite, err := s.core(ctx, sql, pl, flags)
	if err != nil {
		return chain, err
	}
	if !composite && chain.Err != nil && willHealOnRetry(chain.Err) {
		s.invalidatePrepared(sql)
		chain, _, err = s.core(ctx, sql, pl, flags)
	}
	s.classifyTimeout(chain)

	s.mu.Lock()
	s.chain = chain
	s.openResultSets = countRowResults(chain)
	s.mu.Unlock()
	return chain, err
}

// startQueryTimeout arms a per-execution timer that cancels this
// statement's in-flight execution if queryTimeoutMs elapses first, per
// spec.md §4.5/§5/§7. It is grounded on spec.md §9 DESIGN NOTES' global
// statement-cancellation-timer design: the timer holds only a generation
// token, never the Statement itself, so a timer outliving its own
// execution (stop() raced a fire) is a safe no-op rather than a
// use-after-free. The returned stop must run once the execution this call
// guards has finished, win or lose.
func (s *Statement) startQueryTimeout() (stop func()) {
	s.mu.Lock()
	s.execGeneration++
	gen := s.execGeneration
	ms := s.queryTimeoutMs
	s.mu.Unlock()

	if ms <= 0 {
		return func() {}
	}

	timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		s.mu.Lock()
		fire := s.execGeneration == gen
		if fire {
			s.timedOut = true
		}
		s.mu.Unlock()
		if !fire {
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.eng.Cancel(cctx)
	})
	return func() { timer.Stop() }
}

// classifyTimeout reclassifies a query_canceled chain error as
// STATEMENT_CANCELED_BY_TIMEOUT when this execution's own timer is what
// triggered the cancel, distinguishing a timeout from a caller-initiated
// Cancel (spec.md §8 Testable Property 7).
func (s *Statement) classifyTimeout(chain *result.Chain) {
	if chain == nil || chain.Err == nil || chain.Err.Kind != wire.KindQueryCanceled {
		return
	}
	s.mu.Lock()
	fired := s.timedOut
	s.timedOut = false
	s.mu.Unlock()
	if fired {
		chain.Err.Kind = wire.KindStatementCanceledByTimeout
	}
}

// countRowResults counts the row-stream envelopes a freshly built chain
// carries, seeding Statement.openResultSets for closeOnCompletion tracking.
func countRowResults(chain *result.Chain) int {
	if chain == nil {
		return 0
	}
	n := 0
	for e := chain.Head(); e != nil; e = e.Next {
		if e.IsRowResult() {
			n++
		}
	}
	return n
}

func (s *Statement) invalidatePrepared(sql string) {
	key := s.cacheKey(sql)
	if cq, ok := s.cache.Lookup(key); ok && cq.IsPrepared() {
		s.eng.QueueDeferredClose(cq.ServerName())
		cq.MarkClosed()
	}
}

// core borrows sql's CachedQuery, drives one engine.Execute per
// sub-statement (a composite query is never promoted to a named statement
// — see DESIGN.md), and returns the accumulated result chain.
func (s *Statement) core(ctx context.Context, sql string, pl *params.List, flags engine.Flags) (*result.Chain, bool, error) {
	s.mu.Lock()
	threshold := s.prepareThreshold
	fetchSize := s.fetchSize
	adaptiveFetch := s.adaptiveFetch
	maxRows := s.maxRows
	readOnly := s.readOnly
	genKeysArmed := s.generatedKeysArmed
	genKeysColumns := s.generatedKeysColumns
	s.mu.Unlock()

	oneShot := flags.Has(engine.OneShot)
	autocommit := s.eng.Autocommit()

	key := buildCacheKey(sql, s.style != rewrite.StyleNone, genKeysArmed, genKeysColumns, readOnly)
	cq, err := s.cache.Borrow(key, func() (*rewrite.Result, error) {
		return rewrite.Rewrite(sql, s.style, rewrite.Options{
			EnableEscapeProcessing: true,
			UseParameterized:       s.style != rewrite.StyleNone,
			RequestGeneratedKeys:   genKeysArmed,
			GeneratedKeysColumns:   genKeysColumns,
		})
	})
	if err != nil {
		return nil, false, wrapError(wire.KindSyntaxError, err, "rewrite sql for execution")
	}
	defer s.cache.Release(cq)

	if pl == nil {
		pl = params.NewNamedList(cq.Result.SlotCount, cq.Result.NamedSlots)
	}
	if err := pl.Validate(); err != nil {
		return nil, false, wrapError(wire.KindMissingParameter, err, "validate bound parameters")
	}

	composite := isComposite(cq.Result)

	if !composite && !oneShot && !cq.IsPrepared() && cq.ExecuteCount() >= int64(threshold) {
		cq.Promote(uuid.NewString())
	}

	if genKeysArmed {
		// A generated-keys request needs the RETURNING row stream alongside
		// the command status, never just a discarded row count.
		flags |= engine.BothRowsAndStatus
		flags &^= engine.NoResults
	}
	if readOnly {
		flags |= engine.ReadOnlyHint
	}
	if autocommit {
		flags |= engine.SuppressBegin
	}

	// A forward cursor suspends a portal the caller fetches more of later
	// (Statement.FetchMore); that only makes sense for a single row-stream
	// result under an explicit transaction (autocommit has no notion of a
	// cursor surviving past its own statement), so composite queries,
	// discarded- or combined-result executions, and autocommit sessions
	// never engage it (spec.md §4.5's FORWARD_CURSOR flag, §4.6).
	useCursor := !composite && fetchSize > 0 && !autocommit &&
		!flags.Has(engine.NoResults) && !flags.Has(engine.BothRowsAndStatus)
	var sizer *engine.FetchSizer
	rowLimit := int32(0)
	if useCursor {
		flags |= engine.ForwardCursor
		sizer = engine.NewFetchSizer(fetchSize, adaptiveFetch)
		rowLimit = sizer.Next()
	}

	chain := result.NewChain()
	for _, sub := range cq.Result.SubQueries {
		if sub.IsEmpty {
			continue
		}
		subPL := sliceParamsForSubQuery(pl, sub)
		var subCQ *cache.CachedQuery
		if !composite {
			subCQ = cq
		}
		if err := s.eng.Execute(ctx, subCQ, sub.SQL, subPL, flags, rowLimit, chain); err != nil {
			return chain, composite, err
		}
		if composite && chain.Err != nil {
			break
		}
	}
	if useCursor {
		s.armCursor(chain, fetchSize, sizer)
	}
	if maxRows > 0 {
		truncateToMaxRows(chain, maxRows)
	}
	s.captureGeneratedKeys(chain, genKeysArmed)
	return chain, composite, nil
}

// truncateToMaxRows trims every row-stream envelope in chain to at most n
// rows, per spec.md §4.5's setMaxRows tuning knob.
func truncateToMaxRows(chain *result.Chain, n int64) {
	for e := chain.Head(); e != nil; e = e.Next {
		if e.IsRowResult() && int64(len(e.Rows)) > n {
			e.Rows = e.Rows[:n]
		}
	}
}

// captureGeneratedKeys pulls the first row-stream envelope's row data out
// of chain into s.generatedKeys when armed, leaving a bare command-status
// envelope in its place so executeUpdate's count still resolves — only the
// generated-keys row data is "removed from the user-visible result chain"
// (spec.md §4.5). Always disarms the one-shot request, captured or not;
// an unarmed execution clears keys an earlier execution captured.
func (s *Statement) captureGeneratedKeys(chain *result.Chain, armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatedKeysArmed = false
	if !armed {
		s.generatedKeys = nil
		return
	}
	head := chain.Head()
	if head == nil || !head.IsRowResult() {
		s.generatedKeys = nil
		return
	}
	s.generatedKeys = &result.Envelope{
		Fields:         head.Fields,
		Rows:           head.Rows,
		HasUpdateCount: head.HasUpdateCount,
		UpdateCount:    head.UpdateCount,
	}
	head.Fields = nil
	head.Rows = nil
}

// sliceParamsForSubQuery builds the per-statement Bind parameter list a
// sub-statement needs: entries at its own placeholders' global slots,
// carried over from the caller's global list, and unreferenced leading
// slots filled with an inert SQL NULL placeholder, since Postgres binds by
// position up to the highest $n literally present in the Parse'd text
// (spec.md §4.1's global slot numbering under ANY style).
func sliceParamsForSubQuery(global *params.List, sub rewrite.SubQuery) *params.List {
	maxSlot := 0
	used := map[int]bool{}
	for _, p := range sub.Placeholders {
		used[p.Slot] = true
		if p.Slot > maxSlot {
			maxSlot = p.Slot
		}
	}
	if maxSlot == 0 {
		return params.NewList(0)
	}

	local := params.NewList(maxSlot)
	values := global.Values()
	oids := global.OIDs()
	formats := global.Formats()
	for i := 1; i <= maxSlot; i++ {
		if used[i] && i-1 < len(values) {
			local.Set(i, values[i-1], oids[i-1], formats[i-1])
		} else {
			local.Set(i, nil, wire.OIDUnknown, wire.FormatText)
		}
	}
	return local
}
