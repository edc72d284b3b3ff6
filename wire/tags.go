// Package wire encodes and decodes PostgreSQL v3 frontend/backend protocol
// messages: 1-byte tag, 4-byte big-endian length (length includes itself but
// not the tag), followed by the message body.
package wire

// Frontend message tags. StartupMessage and CancelRequest have no tag byte;
// they are identified by a leading protocol/request code instead.
const (
	Bind        byte = 'B'
	Close       byte = 'C'
	CopyDone    byte = 'c'
	CopyData    byte = 'd'
	CopyFail    byte = 'f'
	Describe    byte = 'D'
	Execute     byte = 'E'
	Flush       byte = 'H'
	Parse       byte = 'P'
	PasswordMsg byte = 'p'
	Query       byte = 'Q'
	Sync        byte = 'S'
	Terminate   byte = 'X'
)

// Backend message tags.
const (
	AuthenticationMsg  byte = 'R'
	BackendKeyDataMsg  byte = 'K'
	BindCompleteTag    byte = '2'
	CloseCompleteTag   byte = '3'
	CommandCompleteMsg byte = 'C'
	CopyInResponse     byte = 'G'
	CopyOutResponse    byte = 'H'
	DataRowMsg         byte = 'D'
	EmptyQueryResponseTag byte = 'I'
	ErrorResponseMsg   byte = 'E'
	NoDataTag          byte = 'n'
	NoticeResponseMsg  byte = 'N'
	ParameterDesc      byte = 't'
	ParameterStatusMsg byte = 'S'
	ParseCompleteTag   byte = '1'
	PortalSuspendedTag byte = 's'
	ReadyForQueryMsg   byte = 'Z'
	RowDescriptionMsg  byte = 'T'
)

// StartupMessage and CancelRequest protocol version/request codes.
const (
	ProtocolVersion3    int32 = 196608 // 3 << 16 | 0
	CancelRequestCode   int32 = 80877102
	SSLRequestCode      int32 = 80877103
	GSSENCRequestCode   int32 = 80877104
)

// Portal/statement name conventions.
const (
	UnnamedPortal    = ""
	UnnamedStatement = ""
)

// Parameter format codes.
const (
	FormatText   int16 = 0
	FormatBinary int16 = 1
)

// TransactionStatus codes reported in ReadyForQuery.
const (
	TxIdle       byte = 'I'
	TxInBlock    byte = 'T'
	TxInFailed   byte = 'E'
)
