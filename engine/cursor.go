package engine

import "sync"

// defaultMaxFetchBytes bounds the memory a single adaptive fetch batch may
// occupy; the cap in rows is derived from it and the observed average row
// size (spec.md §4.6: "doubles fetchSize up to a cap based on observed row
// sizes to bound memory").
const defaultMaxFetchBytes int64 = 8 << 20

// FetchSizer hands out the row limit for each Execute(portal, fetchSize)
// call in cursor mode. With adaptiveFetch off it always returns the
// configured default; with it on, the size doubles on every call up to a
// cap recomputed from ObserveBatch's running average row size.
type FetchSizer struct {
	mu         sync.Mutex
	base       int32
	current    int32
	maxRows    int32
	adaptive   bool
	totalRows  int64
	totalBytes int64
}

// NewFetchSizer returns a FetchSizer starting at defaultFetchSize rows.
func NewFetchSizer(defaultFetchSize int32, adaptive bool) *FetchSizer {
	if defaultFetchSize <= 0 {
		defaultFetchSize = 1
	}
	return &FetchSizer{base: defaultFetchSize, current: defaultFetchSize, maxRows: 1 << 30, adaptive: adaptive}
}

// Next returns the row limit for the upcoming Execute and advances the
// doubling sequence for the one after it.
func (f *FetchSizer) Next() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.current
	if n > f.maxRows {
		n = f.maxRows
	}
	if f.adaptive {
		doubled := f.current * 2
		if doubled > f.maxRows {
			doubled = f.maxRows
		}
		if doubled > f.current {
			f.current = doubled
		}
	}
	return n
}

// ObserveBatch folds one fetched batch's row count and total byte size into
// the running average, recomputing the row cap so a future batch stays
// within defaultMaxFetchBytes.
func (f *FetchSizer) ObserveBatch(rows int, bytes int64) {
	if rows <= 0 || !f.adaptive {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.totalRows += int64(rows)
	f.totalBytes += bytes
	avg := f.totalBytes / f.totalRows
	if avg < 1 {
		avg = 1
	}
	cap32 := defaultMaxFetchBytes / avg
	if cap32 < int64(f.base) {
		cap32 = int64(f.base)
	}
	if cap32 > 1<<30 {
		cap32 = 1 << 30
	}
	f.maxRows = int32(cap32)
}

// Portal tracks a suspended FORWARD_CURSOR portal between fetch batches.
type Portal struct {
	Name      string
	Sizer     *FetchSizer
	Suspended bool
	Exhausted bool
}
