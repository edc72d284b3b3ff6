// Package params implements the bound-parameter list the protocol engine
// consumes when it builds a Bind message (spec.md §4.3).
package params

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/quaydb/pgxec/wire"
)

// ErrMissingParameter is returned by Validate when a slot was never set.
var ErrMissingParameter = errors.New("params: missing parameter")

// ErrInvalidParameterValue is returned when a slot index falls outside
// [1..n].
var ErrInvalidParameterValue = errors.New("params: invalid parameter value")

// ErrInvalidParameterName is returned when a name has no corresponding
// slot in the bound query's name→slot map.
var ErrInvalidParameterName = errors.New("params: invalid parameter name")

// slot holds one bound parameter: its already-encoded value bytes, its
// type OID, and whether Value is text or binary encoded. bound
// distinguishes "explicitly set to SQL NULL" (Value == nil, bound == true)
// from "never set" (bound == false).
type slot struct {
	value  []byte
	oid    wire.OID
	format int16
	bound  bool
}

// List is a mutable, ordered set of bound parameter values, indexed by
// 1-based position and, for NAMED-style queries, additionally resolvable
// by name through namedSlots.
type List struct {
	slots      []slot
	namedSlots map[string]int
}

// NewList allocates a List with n empty slots.
func NewList(n int) *List {
	return &List{slots: make([]slot, n)}
}

// NewNamedList allocates a List with n empty slots and a name→slot map for
// resolving :name sets, per the rewriter's first-seen slot assignment.
func NewNamedList(n int, namedSlots map[string]int) *List {
	return &List{slots: make([]slot, n), namedSlots: namedSlots}
}

// Len returns the number of slots in the list.
func (l *List) Len() int { return len(l.slots) }

// Set binds the 1-based index-th slot to value/oid/format.
func (l *List) Set(index int, value []byte, oid wire.OID, format int16) error {
	if index < 1 || index > len(l.slots) {
		return fmt.Errorf("%w: index %d out of range [1..%d]", ErrInvalidParameterValue, index, len(l.slots))
	}
	l.slots[index-1] = slot{value: value, oid: oid, format: format, bound: true}
	return nil
}

// SetNamed binds the slot assigned to name.
func (l *List) SetNamed(name string, value []byte, oid wire.OID, format int16) error {
	idx, ok := l.namedSlots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidParameterName, name)
	}
	return l.Set(idx, value, oid, format)
}

// Reset marks the index-th slot unbound.
func (l *List) Reset(index int) error {
	if index < 1 || index > len(l.slots) {
		return fmt.Errorf("%w: index %d out of range [1..%d]", ErrInvalidParameterValue, index, len(l.slots))
	}
	l.slots[index-1] = slot{}
	return nil
}

// Validate reports ErrMissingParameter if any slot was never bound.
func (l *List) Validate() error {
	for i, s := range l.slots {
		if !s.bound {
			return fmt.Errorf("%w: slot %d", ErrMissingParameter, i+1)
		}
	}
	return nil
}

// Values returns the bound value bytes in slot order, for use in Bind.
func (l *List) Values() [][]byte {
	out := make([][]byte, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.value
	}
	return out
}

// Formats returns the bound text/binary format codes in slot order.
func (l *List) Formats() []int16 {
	out := make([]int16, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.format
	}
	return out
}

// OIDs returns the bound type OIDs in slot order.
func (l *List) OIDs() []wire.OID {
	out := make([]wire.OID, len(l.slots))
	for i, s := range l.slots {
		out[i] = s.oid
	}
	return out
}

// Duplicate returns an independent copy of l, for batch entries that each
// need their own bound values while sharing the same bound query (spec.md
// §4.3: "duplicable at O(n); batches duplicate-on-commit").
func (l *List) Duplicate() *List {
	dup := &List{
		slots:      make([]slot, len(l.slots)),
		namedSlots: l.namedSlots,
	}
	copy(dup.slots, l.slots)
	return dup
}
