// Package result implements the protocol engine's result sink and the
// linked-list result chain it builds (spec.md §4.4).
package result

import "github.com/quaydb/pgxec/wire"

// Envelope is one link in a Statement's result chain: either a row-stream
// result (Fields non-nil) or a bare command-status result.
type Envelope struct {
	Fields []wire.FieldDescription
	Rows   [][][]byte
	Cursor *Cursor

	HasUpdateCount bool
	UpdateCount    int64
	InsertOID      uint32

	// Closed is set once Statement.CloseResult has released this envelope,
	// per spec.md §4.5's closeOnCompletion/firstUnclosedResult tracking.
	Closed bool

	Next *Envelope
}

// IsRowResult reports whether this envelope carries a row stream rather
// than a bare command status.
func (e *Envelope) IsRowResult() bool { return e.Fields != nil }

// Cursor records the suspended-portal state of a FORWARD_CURSOR result, so
// further Execute(portal, fetchSize) calls can resume fetching.
type Cursor struct {
	Portal    string
	FetchSize int32
	Suspended bool
	Exhausted bool
}
