// Package pgxectest holds fakes shared across pgxec's package tests:
// Logger spies and connection builders layered on transport.MockTransport,
// adapted from the teacher's testutil/ package.
package pgxectest

import (
	"sync"

	"github.com/quaydb/pgxec/pgxeclog"
)

// LogEntry records one call made to a RecordingLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields []pgxeclog.Field
}

// RecordingLogger is a pgxeclog.Logger that records every call instead of
// writing anywhere, for tests that assert what was logged.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
	fields  []pgxeclog.Field
}

// NewRecordingLogger returns an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) record(level, msg string, fields []pgxeclog.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]pgxeclog.Field{}, l.fields...), fields...)
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Fields: all})
}

func (l *RecordingLogger) Debug(msg string, fields ...pgxeclog.Field) { l.record("DEBUG", msg, fields) }
func (l *RecordingLogger) Info(msg string, fields ...pgxeclog.Field)  { l.record("INFO", msg, fields) }
func (l *RecordingLogger) Warn(msg string, fields ...pgxeclog.Field)  { l.record("WARN", msg, fields) }
func (l *RecordingLogger) Error(msg string, fields ...pgxeclog.Field) { l.record("ERROR", msg, fields) }

func (l *RecordingLogger) WithFields(fields ...pgxeclog.Field) pgxeclog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &RecordingLogger{fields: append(append([]pgxeclog.Field{}, l.fields...), fields...)}
}

// Entries returns a snapshot of every call recorded so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry{}, l.entries...)
}

// HasMessage reports whether any entry's Msg equals msg.
func (l *RecordingLogger) HasMessage(msg string) bool {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return true
		}
	}
	return false
}
