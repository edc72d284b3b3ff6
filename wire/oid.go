package wire

// OID is a PostgreSQL type object identifier, per the standard catalog
// (pg_type). Only the subset the rewriter and parameter list need to infer
// or default to is listed here; a real driver's type-converter layer (out of
// scope per spec.md §1) would carry the rest.
type OID uint32

const (
	OIDUnknown OID = 0
	OIDBool    OID = 16
	OIDBytea   OID = 17
	OIDInt8    OID = 20
	OIDInt2    OID = 21
	OIDInt4    OID = 23
	OIDText    OID = 25
	OIDFloat4  OID = 700
	OIDFloat8  OID = 701
	OIDVarchar OID = 1043
	OIDDate    OID = 1082
	OIDTime    OID = 1083
	OIDTimestamp OID = 1114
	OIDTimestampTZ OID = 1184
	OIDNumeric OID = 1700
)
