package pgxecconn

import (
	"github.com/quaydb/pgxec/cache"
	"github.com/quaydb/pgxec/engine"
	"github.com/quaydb/pgxec/rewrite"
	"github.com/quaydb/pgxec/session"
	"github.com/quaydb/pgxec/transport"
)

// NewTestConnection builds a Connection directly over t, skipping Connect's
// dial and authentication handshake, for callers (pgxectest and its
// consumers) that need a *Connection backed by an in-memory transport.
func NewTestConnection(t transport.Transport, cacheSize int) *Connection {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	sess := session.New()
	eng := engine.New(t, sess)
	qc := cache.New(cacheSize)
	qc.SetEvictionHook(eng.QueueDeferredClose)
	return &Connection{
		t:     t,
		eng:   eng,
		sess:  sess,
		cache: qc,
		style: rewrite.StyleNative,
	}
}
