package rewrite

// Placeholder records one placeholder occurrence: its assigned global slot
// and the byte range of its original spelling in the source text, so error
// messages can report the original form.
type Placeholder struct {
	Slot  int
	Start int
	End   int
	Kind  byte // '?', '$', or ':'
}

// SubQuery is one statement split from the source text by an unquoted ';'.
// Grounded on spec.md §3's SubQuery entity and §4.1's isRewritableInsert
// detection.
type SubQuery struct {
	// SQL is the rewritten text of this sub-statement, with every
	// recognized placeholder replaced by its $n form.
	SQL string

	// Placeholders lists every placeholder occurrence in this
	// sub-statement, in source order; a repeated NAMED placeholder appears
	// once per occurrence, sharing its Slot.
	Placeholders []Placeholder

	IsEmpty bool

	// IsRewritableInsert is true when SQL matches, case-insensitively,
	// INSERT INTO <relation> [(<cols>)] VALUES (<tuple>)[, (<tuple>)...] with
	// no trailing clause but an optional RETURNING.
	IsRewritableInsert bool
	InsertRelation      string
	InsertColumnList    string // raw text between the column-list parens, if present
	ValuesStart          int    // byte offset of the VALUES tuple list's opening paren in SQL
	ValuesEnd            int    // byte offset just past the VALUES tuple list's closing paren

	// ReturningColumns is true when the statement carries an explicit or
	// injected RETURNING clause.
	ReturningColumns bool
}

// Result is the outcome of one call to Rewrite.
type Result struct {
	SubQueries []SubQuery

	// SlotCount is the number of distinct placeholder slots across every
	// sub-statement (global numbering, per §4.1).
	SlotCount int

	// NamedSlots maps a NAMED-style identifier to its assigned slot; empty
	// unless the rewrite style accepted NAMED placeholders.
	NamedSlots map[string]int
}
