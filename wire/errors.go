package wire

// Kind is the engine's local classification of a server- or client-raised
// error, per spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionFailure
	KindQueryCanceled
	KindSyntaxError
	KindUndefinedFunction
	KindUndefinedColumn
	KindServerError // SQLSTATE preserved, no specific local kind matched
	KindInvalidParameterValue
	KindInvalidParameterName
	KindMissingParameter
	KindTooManyResults
	KindNoData
	KindObjectNotInState
	KindNotImplemented
	KindStatementCanceledByTimeout
	KindWillHealOnRetry
)

func (k Kind) String() string {
	switch k {
	case KindConnectionFailure:
		return "CONNECTION_FAILURE"
	case KindQueryCanceled:
		return "QUERY_CANCELED"
	case KindSyntaxError:
		return "SYNTAX_ERROR"
	case KindUndefinedFunction:
		return "UNDEFINED_FUNCTION"
	case KindUndefinedColumn:
		return "UNDEFINED_COLUMN"
	case KindServerError:
		return "SERVER_ERROR"
	case KindInvalidParameterValue:
		return "INVALID_PARAMETER_VALUE"
	case KindInvalidParameterName:
		return "INVALID_PARAMETER_NAME"
	case KindMissingParameter:
		return "MISSING_PARAMETER"
	case KindTooManyResults:
		return "TOO_MANY_RESULTS"
	case KindNoData:
		return "NO_DATA"
	case KindObjectNotInState:
		return "OBJECT_NOT_IN_STATE"
	case KindNotImplemented:
		return "NOT_IMPLEMENTED"
	case KindStatementCanceledByTimeout:
		return "STATEMENT_CANCELED_BY_TIMEOUT"
	case KindWillHealOnRetry:
		return "WILL_HEAL_ON_RETRY"
	default:
		return "UNKNOWN"
	}
}

// SQLSTATE codes referenced directly by the engine.
const (
	SQLStateQueryCanceled          = "57014"
	SQLStateInvalidSQLStatementName = "26000"
	SQLStateFeatureNotSupported    = "0A000"
)

// PgError wraps a decoded ErrorResponse with its local Kind classification.
type PgError struct {
	SQLSTATE string
	Severity string
	Message  string
	Detail   string
	Hint     string
	Kind     Kind
}

func (e *PgError) Error() string {
	if e.SQLSTATE != "" {
		return e.SQLSTATE + ": " + e.Message
	}
	return e.Message
}

// ClassifyError maps a decoded ErrorResponse to a PgError, filling in Kind
// per the curated subset in spec.md §7 plus the open-question starting set
// for willHealOnRetry from §9 (see DESIGN.md).
func ClassifyError(er ErrorResponse) *PgError {
	pe := &PgError{
		SQLSTATE: er.SQLSTATE,
		Severity: er.Severity,
		Message:  er.Message,
		Detail:   er.Detail,
		Hint:     er.Hint,
		Kind:     KindServerError,
	}

	switch er.SQLSTATE {
	case SQLStateQueryCanceled:
		pe.Kind = KindQueryCanceled
		return pe
	case "42601":
		pe.Kind = KindSyntaxError
		return pe
	case "42883":
		pe.Kind = KindUndefinedFunction
		return pe
	case "42703":
		pe.Kind = KindUndefinedColumn
		return pe
	}

	if isWillHealOnRetry(er) {
		pe.Kind = KindWillHealOnRetry
	}
	return pe
}

// isWillHealOnRetry implements the §9 open-question starting classification:
// stale prepared-statement name, or a feature_not_supported error whose text
// indicates a stale cached plan / portal describe mismatch.
func isWillHealOnRetry(er ErrorResponse) bool {
	switch er.SQLSTATE {
	case SQLStateInvalidSQLStatementName:
		return true
	case SQLStateFeatureNotSupported:
		return containsAny(er.Message, "cached plan", "statement describe")
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) <= len(s) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
