package stmt

import (
	"github.com/quaydb/pgxec/rewrite"
	"github.com/quaydb/pgxec/wire"
)

// isComposite reports whether a rewritten query has more than one
// sub-statement; composite queries are never retried and never promoted to
// a named server-prepared statement (spec.md §4.5; DESIGN.md decision —
// per-sub-statement naming for a multi-statement CachedQuery is out of
// scope, see the Open Question notes).
func isComposite(r *rewrite.Result) bool { return len(r.SubQueries) > 1 }

// willHealOnRetry reports whether pe belongs to the §9 open-question
// starting set of error kinds the engine retries exactly once: a stale
// prepared-statement name, or a parameter-type mismatch against a cached
// plan.
func willHealOnRetry(pe *wire.PgError) bool {
	return pe != nil && pe.Kind == wire.KindWillHealOnRetry
}
