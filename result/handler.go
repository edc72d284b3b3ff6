package result

import "github.com/quaydb/pgxec/wire"

// Sink is implemented by every result-handler variant the protocol engine
// drives during one execution, per spec.md §4.4's four events.
type Sink interface {
	OnRows(fields []wire.FieldDescription)
	OnDataRow(row [][]byte)
	OnPortalSuspended()
	OnCommandStatus(tag string, updateCount int64, hasCount bool)
	OnEmptyQuery()
	OnWarning(n wire.NoticeResponse)
	OnError(pe *wire.PgError)
}

// Chain is a Sink that accumulates events into a linked list of Envelopes.
// It backs the single-result, update-only, and generated-keys handler
// variants described in spec.md §4.4 — they differ only in how the
// Statement consumes the finished chain, not in how the chain is built.
type Chain struct {
	head     *Envelope
	tail     *Envelope
	current  *Envelope
	Warnings []*wire.NoticeResponse
	Err      *wire.PgError
}

// NewChain returns an empty Chain.
func NewChain() *Chain { return &Chain{} }

func (c *Chain) OnRows(fields []wire.FieldDescription) {
	e := &Envelope{Fields: fields}
	c.append(e)
	c.current = e
}

func (c *Chain) OnDataRow(row [][]byte) {
	if c.current == nil {
		c.current = &Envelope{}
		c.append(c.current)
	}
	c.current.Rows = append(c.current.Rows, row)
}

func (c *Chain) OnPortalSuspended() {
	if c.current == nil {
		return
	}
	if c.current.Cursor == nil {
		c.current.Cursor = &Cursor{}
	}
	c.current.Cursor.Suspended = true
}

func (c *Chain) OnCommandStatus(tag string, updateCount int64, hasCount bool) {
	// A row-stream result carries its own trailing CommandComplete (e.g. a
	// plain SELECT, or an INSERT ... RETURNING); fold the count onto the
	// envelope OnRows already opened instead of appending a second, bare
	// envelope for the same statement.
	if c.current != nil {
		c.current.HasUpdateCount = hasCount
		c.current.UpdateCount = updateCount
		c.current = nil
		return
	}
	c.append(&Envelope{HasUpdateCount: hasCount, UpdateCount: updateCount})
}

func (c *Chain) OnEmptyQuery() {
	c.append(&Envelope{HasUpdateCount: true})
	c.current = nil
}

func (c *Chain) OnWarning(n wire.NoticeResponse) {
	c.Warnings = append(c.Warnings, &n)
}

func (c *Chain) OnError(pe *wire.PgError) {
	c.Err = pe
}

// Head returns the first envelope in the chain, or nil if none were
// produced.
func (c *Chain) Head() *Envelope { return c.head }

// Advance drops the current head and returns what follows it, so repeated
// GetMoreResults calls progress through the chain instead of recomputing
// Head().Next from an unchanging head every time.
func (c *Chain) Advance() *Envelope {
	if c.head == nil {
		return nil
	}
	c.head = c.head.Next
	return c.head
}

func (c *Chain) append(e *Envelope) {
	if c.head == nil {
		c.head = e
		c.tail = e
		return
	}
	c.tail.Next = e
	c.tail = e
}
