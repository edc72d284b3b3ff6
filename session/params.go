// Package session holds per-connection state the protocol engine maintains
// on behalf of the user: the read-only view of server GUC_REPORT
// parameters (spec.md §4.x "Session Parameter Map").
package session

import "sync"

// ParameterMap is the connection's process-view of server GUC_REPORT
// parameters. It is written only by the protocol engine, under the
// connection lock, on ParameterStatus frames; reads take the read lock, and
// Snapshot hands out an independent copy. Grounded on the RWMutex + copy-on-read
// discipline of client/state.go's StateManager, adapted from a single
// current-value field to a name→value map.
type ParameterMap struct {
	mu     sync.RWMutex
	values map[string]string
}

// New returns an empty ParameterMap.
func New() *ParameterMap {
	return &ParameterMap{values: make(map[string]string)}
}

// Set records a ParameterStatus update. Must be called only by the engine
// while holding the connection lock; the map's own mutex additionally
// guards concurrent readers.
func (m *ParameterMap) Set(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Get returns the current value of name and whether it has been reported.
func (m *ParameterMap) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// Snapshot returns a copy of every reported parameter, safe to read after
// the call with no further locking. Writes to the copy do not reach the
// map, and later updates to the map do not reach the copy.
func (m *ParameterMap) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
