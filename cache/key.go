// Package cache implements the per-connection query cache (spec.md §4.2): a
// bounded mapping from a normalized CacheKey to a CachedQuery, with a
// borrow/release discipline and LRU eviction.
package cache

import (
	"strconv"

	"github.com/cespare/xxhash"
)

// Key normalizes the inputs that make two SQL strings share a CachedQuery:
// the raw SQL, the escape-processing and parameterized flags, and the
// generated-keys RETURNING spec requested for that text.
type Key struct {
	SQL                  string
	EscapeProcessing     bool
	UseParameterized     bool
	ReturningColumnsSpec string

	// ReadOnly mirrors engine.ReadOnlyHint: a read-only declaration changes
	// what the server-prepared statement cache key represents even for
	// otherwise-identical SQL (spec.md §4.5).
	ReadOnly bool
}

// Hash returns a 64-bit digest of k suitable for map storage, via
// cespare/xxhash — the same hashing library the teacher's go.mod already
// carries (client/statement_cache.go's cache keys the statement name
// directly; a SQL-keyed cache needs a cheap digest of arbitrary-length
// text instead).
func (k Key) Hash() uint64 {
	buf := make([]byte, 0, len(k.SQL)+len(k.ReturningColumnsSpec)+9)
	buf = append(buf, k.SQL...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatBool(k.EscapeProcessing)...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatBool(k.UseParameterized)...)
	buf = append(buf, 0)
	buf = append(buf, k.ReturningColumnsSpec...)
	buf = append(buf, 0)
	buf = append(buf, strconv.FormatBool(k.ReadOnly)...)
	return xxhash.Sum64(buf)
}
