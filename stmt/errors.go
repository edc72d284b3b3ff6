package stmt

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/quaydb/pgxec/wire"
)

// Error is a local (non-server) failure raised by the statement executor,
// classified under the same wire.Kind taxonomy the engine uses for server
// errors, per spec.md §7. Grounded on client/errors.go's
// StatementError/QueryError shape, trimmed to the fields the executor
// actually needs. Cause is built with github.com/cockroachdb/errors so the
// original failure's stack trace and cause chain survive Unwrap/errors.Is,
// instead of a hand-rolled runtime.Callers walk.
type Error struct {
	Kind    wire.Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind wire.Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.Newf(format, args...)}
}

func wrapError(kind wire.Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.Wrapf(cause, format, args...)}
}
