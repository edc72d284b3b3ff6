package pgxec

import (
	"time"

	"github.com/quaydb/pgxec/pgxeclog"
	"github.com/quaydb/pgxec/rewrite"
)

// AutoSave names the savepoint policies (never, conservative, always)
// ClientOptions.AutoSave can record. No component reads the setting: the
// Client and Statement never issue a SAVEPOINT.
type AutoSave int

const (
	AutoSaveNever AutoSave = iota
	AutoSaveConservative
	AutoSaveAlways
)

func (a AutoSave) String() string {
	switch a {
	case AutoSaveConservative:
		return "conservative"
	case AutoSaveAlways:
		return "always"
	default:
		return "never"
	}
}

// QueryMode names the wire-protocol dispatch modes ClientOptions.
// PreferQueryMode can record. No component reads the setting: a Statement
// always uses the extended protocol.
type QueryMode int

const (
	QueryModeExtended QueryMode = iota
	QueryModeSimple
	QueryModeExtendedForPrepared
	QueryModeExtendedCacheEverything
)

// ClientOptions configures a Client/Pool, grounded on client/options.go's
// ClientOptions, trimmed of syndrdb-only fields (PreloadSchema,
// SchemaCacheTTL) and carrying the statement-tuning surface spec.md §6
// names instead.
type ClientOptions struct {
	// DefaultTimeoutMs is stored but not read: neither Connect nor a new
	// Statement applies it; a Statement's timeout comes only from
	// SetQueryTimeout.
	// Default: 10000 (10 seconds)
	DefaultTimeoutMs int

	// DebugMode is recorded on the Client and reported by IsDebugMode;
	// nothing else changes behavior on it.
	DebugMode bool

	// MaxRetries is the maximum number of connection dial retry attempts.
	// Uses exponential backoff: 100ms, 200ms, 400ms, etc.
	MaxRetries int

	// PoolMinSize is the minimum number of idle connections to maintain.
	PoolMinSize int

	// PoolMaxSize is the maximum number of open connections.
	PoolMaxSize int

	// PoolIdleTimeout is the duration after which idle connections are closed.
	PoolIdleTimeout time.Duration

	// HealthCheckInterval is how often to ping idle connections.
	HealthCheckInterval time.Duration

	// MaxReconnectAttempts is stored but not read: the Client does not
	// reconnect automatically.
	MaxReconnectAttempts int

	// TLSEnabled enables TLS on dial.
	TLSEnabled bool

	// TLSInsecureSkipVerify skips certificate validation (for development only).
	TLSInsecureSkipVerify bool

	// TLSCertFile and TLSKeyFile name the client certificate and key PEM
	// files presented on dial. TLSCAFile is stored but not read; the server
	// certificate is checked against the system roots unless
	// TLSInsecureSkipVerify is set.
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string

	// Logger is the logger every Client/Pool/Connection logs through. If
	// nil, a default zap-backed JSON logger is used.
	Logger pgxeclog.Logger

	// LogLevel sets the minimum level for the default logger (DEBUG, INFO,
	// WARN, ERROR). Ignored if Logger is set explicitly.
	LogLevel string

	// PreparedStatementCacheSize bounds each connection's QueryCache.
	PreparedStatementCacheSize int

	// PlaceholderStyle selects which placeholder syntax the rewriter
	// recognizes in application SQL (spec.md §4.1).
	PlaceholderStyle rewrite.Style

	// PrepareThreshold is how many unnamed executions a query runs before
	// being promoted to a named server-side statement. A negative value is
	// treated as 1; it does not switch result transfer to binary.
	PrepareThreshold int

	// AutoSave is stored but not read; see the AutoSave type.
	AutoSave AutoSave

	// PreferQueryMode is stored but not read; see the QueryMode type.
	PreferQueryMode QueryMode

	// ReWriteBatchedInserts is stored but not read: Statement.ExecuteBatch
	// folds consecutive AddBatch entries against the same rewritable INSERT
	// into one multi-tuple execution whatever this is set to.
	ReWriteBatchedInserts bool

	// AdaptiveFetch lets a forward-cursor Statement grow its row-limit
	// request based on observed row sizes instead of a fixed FetchSize.
	AdaptiveFetch bool

	// DefaultFetchSize is the row limit a forward-cursor Statement
	// requests per Execute when the application hasn't called
	// SetFetchSize itself. 0 means fetch everything in one round trip.
	DefaultFetchSize int32
}

// DefaultOptions returns ClientOptions with pgxec's defaults.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		DefaultTimeoutMs:           10000,
		DebugMode:                  false,
		MaxRetries:                 3,
		PoolMinSize:                1,
		PoolMaxSize:                1,
		PoolIdleTimeout:            30 * time.Second,
		HealthCheckInterval:        30 * time.Second,
		MaxReconnectAttempts:       10,
		TLSEnabled:                 false,
		TLSInsecureSkipVerify:      false,
		LogLevel:                   "INFO",
		PreparedStatementCacheSize: 256,
		PlaceholderStyle:           rewrite.StyleAny,
		PrepareThreshold:           5,
		AutoSave:                   AutoSaveNever,
		PreferQueryMode:            QueryModeExtended,
		ReWriteBatchedInserts:      true,
		AdaptiveFetch:              false,
		DefaultFetchSize:           0,
	}
}

func (o ClientOptions) logger() pgxeclog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return pgxeclog.New(o.LogLevel)
}
