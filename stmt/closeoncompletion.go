package stmt

import "sync/atomic"

// closeLatch is a single-shot, re-entrancy-safe gate: fire calls f exactly
// once even when a ResultSet.Close triggering closeOnCompletion races with
// the statement's own explicit Close (spec.md §4.5).
type closeLatch struct {
	fired atomic.Bool
}

func (l *closeLatch) fire(f func()) {
	if l.fired.CompareAndSwap(false, true) {
		f()
	}
}

func (l *closeLatch) isFired() bool { return l.fired.Load() }
