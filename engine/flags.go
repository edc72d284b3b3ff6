package engine

// Flags controls how Execute drives one Statement execution against the
// protocol, per spec.md §4.5/§4.6.
type Flags uint32

const (
	// NoResults tells the engine the caller will discard rows; it does not
	// change the wire exchange, only how Statement allocates for the reply.
	NoResults Flags = 1 << iota
	// OneShot marks a query that skips promotion accounting even if
	// prepareThreshold would otherwise be reached.
	OneShot
	// ForwardCursor requests portal-suspend cursoring: Execute carries a
	// positive row limit and PortalSuspended is expected when more rows
	// remain.
	ForwardCursor
	// BothRowsAndStatus asks the caller's Statement to keep both the row
	// stream and the command status around, for generated-keys requests.
	BothRowsAndStatus
	// SuppressBegin marks a query that must not trigger an implicit
	// transaction start (autocommit on, or an empty statement).
	SuppressBegin
	// ReadOnlyHint carries the statement's read-only declaration down to the
	// engine, which does not act on it; Statement keys its cache on its own
	// read-only setting.
	ReadOnlyHint
	// NoBinaryTransfer forces text-format result columns, e.g. for
	// updateable result sets or generated-keys batches.
	NoBinaryTransfer
	// ExecuteAsSimple drives simple-query mode (a single Query message with
	// inline literal substitution) instead of the extended protocol.
	ExecuteAsSimple
	// DescribeOnly requests a Describe(portal) after Bind without an
	// Execute, to learn result shape before fetching rows.
	DescribeOnly
	// ForceDescribePortal requests Describe(portal) even on a path that
	// would otherwise skip it (e.g. a cached RowDescription might be stale).
	ForceDescribePortal
)

// Has reports whether bit is set in f.
func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
