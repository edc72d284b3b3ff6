package cache

import (
	"sync/atomic"
	"time"

	"github.com/quaydb/pgxec/rewrite"
	"github.com/quaydb/pgxec/wire"
)

// CachedQuery is one cache entry: the rewritten form of a SQL string, its
// execution history, and (once promoted) the server-side statement name
// it is parsed under. Grounded on spec.md §3's CachedQuery entity.
type CachedQuery struct {
	Key    Key
	Result *rewrite.Result

	executeCount atomic.Int64
	borrowCount  atomic.Int32
	lastAccess   atomic.Int64 // unix nanos

	serverName  atomic.Pointer[string]
	paramOIDs   atomic.Pointer[[]wire.OID]
	deferClose  atomic.Bool // a Close(statement) is owed before the name is reused
}

func newCachedQuery(key Key, result *rewrite.Result) *CachedQuery {
	q := &CachedQuery{Key: key, Result: result}
	q.lastAccess.Store(time.Now().UnixNano())
	return q
}

// ExecuteCount returns the number of completed executions of this query.
func (q *CachedQuery) ExecuteCount() int64 { return q.executeCount.Load() }

// IncrementExecuteCount records one more completed execution; it only
// increases, per spec.md §3's cache-monotonicity invariant.
func (q *CachedQuery) IncrementExecuteCount() int64 { return q.executeCount.Add(1) }

// ServerName returns the server-prepared statement name, or "" if the
// query has not been promoted yet.
func (q *CachedQuery) ServerName() string {
	if p := q.serverName.Load(); p != nil {
		return *p
	}
	return ""
}

// IsPrepared reports whether the query has been promoted to a named
// server-side statement.
func (q *CachedQuery) IsPrepared() bool { return q.ServerName() != "" }

// Promote assigns the server statement name once the query has met its
// prepare threshold. Promotion is monotonic: once set, the name is never
// cleared except by MarkClosed.
func (q *CachedQuery) Promote(name string) {
	q.serverName.Store(&name)
}

// MarkClosed clears the server statement name, e.g. after the cache issues
// a deferred Close(statement) to free the name for reuse.
func (q *CachedQuery) MarkClosed() {
	q.serverName.Store(nil)
	q.deferClose.Store(false)
}

// RequestDeferredClose flags that a Close(statement) is owed on the server
// before this query's server name can be reused, per spec.md §4.2's lazy
// teardown-before-reuse rule.
func (q *CachedQuery) RequestDeferredClose() { q.deferClose.Store(true) }

// NeedsDeferredClose reports whether a Close(statement) is still owed.
func (q *CachedQuery) NeedsDeferredClose() bool { return q.deferClose.Load() }

// LastParamOIDs returns the parameter type OIDs from the most recent
// execution, if any.
func (q *CachedQuery) LastParamOIDs() []wire.OID {
	if p := q.paramOIDs.Load(); p != nil {
		return *p
	}
	return nil
}

// SetLastParamOIDs records the parameter type OIDs used in the most recent
// execution.
func (q *CachedQuery) SetLastParamOIDs(oids []wire.OID) {
	q.paramOIDs.Store(&oids)
}

// BorrowCount returns the current number of live borrows.
func (q *CachedQuery) BorrowCount() int32 { return q.borrowCount.Load() }

func (q *CachedQuery) touch() {
	q.lastAccess.Store(time.Now().UnixNano())
}

func (q *CachedQuery) lastAccessTime() time.Time {
	return time.Unix(0, q.lastAccess.Load())
}
