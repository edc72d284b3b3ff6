package result

import (
	"github.com/cockroachdb/errors"

	"github.com/quaydb/pgxec/wire"
)

// ExecuteFailed is the sentinel update count recorded for a batch entry
// that failed, mirroring JDBC's Statement.EXECUTE_FAILED (spec.md §8,
// testable property 8).
const ExecuteFailed int64 = -3

// SuccessNoInfo marks a batch entry whose exact row count the server
// didn't report, e.g. one of several entries folded into a single
// rewritten-INSERT merge (spec.md §4.5).
const SuccessNoInfo int64 = -2

// BatchResult is the outcome of one executeBatch call.
type BatchResult struct {
	Counts       []int64
	FailureIndex int // -1 if every entry succeeded
	FirstError   *wire.PgError

	// Err wraps FirstError with the failing entry's index via
	// github.com/cockroachdb/errors, so callers that only care "did the
	// batch fail, and why" can errors.Is/errors.As through to FirstError
	// without re-deriving FailureIndex from a raw *wire.PgError.
	Err error
}

// BatchHandler is a Sink that tracks the outcome of the batch entry
// currently executing; the Statement driving executeBatch calls Advance
// between entries and RecordMergedGroup after a rewritten-INSERT merge.
type BatchHandler struct {
	result BatchResult
	entry  int
	chain  *Chain
}

// NewBatchHandler returns a BatchHandler pre-sized for n batch entries,
// each defaulting to ExecuteFailed until it completes.
func NewBatchHandler(n int) *BatchHandler {
	counts := make([]int64, n)
	for i := range counts {
		counts[i] = ExecuteFailed
	}
	return &BatchHandler{result: BatchResult{Counts: counts, FailureIndex: -1}, chain: NewChain()}
}

func (b *BatchHandler) OnRows(fields []wire.FieldDescription) { b.chain.OnRows(fields) }
func (b *BatchHandler) OnDataRow(row [][]byte)                { b.chain.OnDataRow(row) }
func (b *BatchHandler) OnPortalSuspended()                    { b.chain.OnPortalSuspended() }
func (b *BatchHandler) OnEmptyQuery()                         { b.chain.OnEmptyQuery() }
func (b *BatchHandler) OnWarning(n wire.NoticeResponse)       { b.chain.OnWarning(n) }

func (b *BatchHandler) OnCommandStatus(tag string, updateCount int64, hasCount bool) {
	if hasCount {
		b.result.Counts[b.entry] = updateCount
	} else {
		b.result.Counts[b.entry] = SuccessNoInfo
	}
	b.chain.OnCommandStatus(tag, updateCount, hasCount)
}

func (b *BatchHandler) OnError(pe *wire.PgError) {
	b.result.Counts[b.entry] = ExecuteFailed
	if b.result.FailureIndex < 0 {
		b.result.FailureIndex = b.entry
		b.result.FirstError = pe
		b.result.Err = errors.Wrapf(pe, "batch entry %d failed", b.entry)
	}
	b.chain.OnError(pe)
}

// Advance moves on to the next batch entry.
func (b *BatchHandler) Advance() { b.entry++ }

// RecordMergedGroup assigns SuccessNoInfo to every entry in
// [start, start+n) that a rewritten-batch-INSERT merge covered with one
// execution (spec.md §4.5).
func (b *BatchHandler) RecordMergedGroup(start, n int) {
	end := start + n
	if end > len(b.result.Counts) {
		end = len(b.result.Counts)
	}
	for i := start; i < end; i++ {
		b.result.Counts[i] = SuccessNoInfo
	}
}

// Result returns the accumulated BatchResult.
func (b *BatchHandler) Result() BatchResult { return b.result }
