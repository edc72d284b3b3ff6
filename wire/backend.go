package wire

import "fmt"

// Message is implemented by every decoded backend message type.
type Message interface {
	messageTag() byte
}

// FieldDescription describes one result column, as reported by
// RowDescription.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnAttr   int16
	DataTypeOID  OID
	DataTypeSize int16
	TypeModifier int32
	Format       int16
}

// RowDescription is sent once before the row stream of a query that
// produces results.
type RowDescription struct {
	Fields []FieldDescription
}

func (RowDescription) messageTag() byte { return RowDescriptionMsg }

// DataRow carries one result row's column values; a nil entry is SQL NULL.
type DataRow struct {
	Values [][]byte
}

func (DataRow) messageTag() byte { return DataRowMsg }

// CommandComplete reports the tag of a completed command (e.g. "SELECT 5",
// "INSERT 0 3", "UPDATE 2") and, when parseable, the update count. The OID
// field of an INSERT tag is not decoded.
type CommandComplete struct {
	Tag         string
	UpdateCount int64
	HasCount    bool
}

func (CommandComplete) messageTag() byte { return CommandCompleteMsg }

// ErrorResponse is a server error report; SQLSTATE is preserved verbatim
// per §6.
type ErrorResponse struct {
	Severity string
	SQLSTATE string
	Message  string
	Detail   string
	Hint     string
	Position string
	Fields   map[byte]string
}

func (ErrorResponse) messageTag() byte { return ErrorResponseMsg }

// NoticeResponse has the same field shape as ErrorResponse but never aborts
// execution (§4.4, §7).
type NoticeResponse struct {
	Severity string
	SQLSTATE string
	Message  string
	Fields   map[byte]string
}

func (NoticeResponse) messageTag() byte { return NoticeResponseMsg }

// ParameterStatus reports a GUC_REPORT parameter's current value.
type ParameterStatus struct {
	Name  string
	Value string
}

func (ParameterStatus) messageTag() byte { return ParameterStatusMsg }

// ReadyForQuery marks the end of one request/reply cycle and reports the
// transaction status.
type ReadyForQuery struct {
	TxStatus byte
}

func (ReadyForQuery) messageTag() byte { return ReadyForQueryMsg }

// ParseComplete/BindComplete/CloseComplete/NoData/PortalSuspended/
// EmptyQueryResponse carry no data.
type ParseComplete struct{}
type BindComplete struct{}
type CloseComplete struct{}
type NoDataMsg struct{}
type PortalSuspendedMsg struct{}
type EmptyQueryResponseMsg struct{}

func (ParseComplete) messageTag() byte         { return ParseCompleteTag }
func (BindComplete) messageTag() byte          { return BindCompleteTag }
func (CloseComplete) messageTag() byte         { return CloseCompleteTag }
func (NoDataMsg) messageTag() byte             { return NoDataTag }
func (PortalSuspendedMsg) messageTag() byte    { return PortalSuspendedTag }
func (EmptyQueryResponseMsg) messageTag() byte { return EmptyQueryResponseTag }

// ParameterDescription reports the inferred/declared parameter OIDs for a
// Describe(statement) request.
type ParameterDescription struct {
	OIDs []OID
}

func (ParameterDescription) messageTag() byte { return ParameterDesc }

// BackendKeyData carries the backend PID and secret key used to build a
// CancelRequest (§6).
type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

func (BackendKeyData) messageTag() byte { return BackendKeyDataMsg }

// AuthenticationRequest is a decoded Authentication* message; Kind
// distinguishes AuthenticationOk (0) from the various challenge kinds. Full
// SASL/SCRAM negotiation is handled by transport.AuthNegotiator (§1 places
// auth out of scope for the engine itself).
type AuthenticationRequest struct {
	Kind    int32
	Payload []byte
}

func (AuthenticationRequest) messageTag() byte { return AuthenticationMsg }

// Decode parses one backend frame into its typed Message.
func Decode(f Frame) (Message, error) {
	r := newBodyReader(f.Body)

	switch f.Tag {
	case RowDescriptionMsg:
		n := r.int16()
		fields := make([]FieldDescription, 0, n)
		for i := int16(0); i < n; i++ {
			fields = append(fields, FieldDescription{
				Name:         r.cstring(),
				TableOID:     r.uint32(),
				ColumnAttr:   r.int16(),
				DataTypeOID:  OID(r.uint32()),
				DataTypeSize: r.int16(),
				TypeModifier: r.int32(),
				Format:       r.int16(),
			})
		}
		return RowDescription{Fields: fields}, r.err

	case DataRowMsg:
		n := r.int16()
		values := make([][]byte, 0, n)
		for i := int16(0); i < n; i++ {
			l := r.int32()
			values = append(values, r.bytesN(l))
		}
		return DataRow{Values: values}, r.err

	case CommandCompleteMsg:
		tag := r.cstring()
		cnt, has := parseCommandTag(tag)
		return CommandComplete{Tag: tag, UpdateCount: cnt, HasCount: has}, r.err

	case ErrorResponseMsg, NoticeResponseMsg:
		fields := map[byte]string{}
		for {
			code := r.byte()
			if code == 0 || r.err != nil {
				break
			}
			fields[code] = r.cstring()
		}
		if f.Tag == ErrorResponseMsg {
			return ErrorResponse{
				Severity: fields['S'],
				SQLSTATE: fields['C'],
				Message:  fields['M'],
				Detail:   fields['D'],
				Hint:     fields['H'],
				Position: fields['P'],
				Fields:   fields,
			}, r.err
		}
		return NoticeResponse{
			Severity: fields['S'],
			SQLSTATE: fields['C'],
			Message:  fields['M'],
			Fields:   fields,
		}, r.err

	case ParameterStatusMsg:
		return ParameterStatus{Name: r.cstring(), Value: r.cstring()}, r.err

	case ReadyForQueryMsg:
		return ReadyForQuery{TxStatus: r.byte()}, r.err

	case ParseCompleteTag:
		return ParseComplete{}, nil
	case BindCompleteTag:
		return BindComplete{}, nil
	case CloseCompleteTag:
		return CloseComplete{}, nil
	case NoDataTag:
		return NoDataMsg{}, nil
	case PortalSuspendedTag:
		return PortalSuspendedMsg{}, nil
	case EmptyQueryResponseTag:
		return EmptyQueryResponseMsg{}, nil

	case ParameterDesc:
		n := r.int16()
		oids := make([]OID, 0, n)
		for i := int16(0); i < n; i++ {
			oids = append(oids, OID(r.uint32()))
		}
		return ParameterDescription{OIDs: oids}, r.err

	case BackendKeyDataMsg:
		return BackendKeyData{ProcessID: r.int32(), SecretKey: r.int32()}, r.err

	case AuthenticationMsg:
		kind := r.int32()
		return AuthenticationRequest{Kind: kind, Payload: r.remaining()}, r.err

	default:
		return nil, fmt.Errorf("wire: unknown backend message tag %q", f.Tag)
	}
}

// parseCommandTag extracts the trailing row/update count from a
// CommandComplete tag such as "UPDATE 3", "INSERT 0 3", "SELECT 5".
func parseCommandTag(tag string) (count int64, ok bool) {
	var lastSpace = -1
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if lastSpace < 0 || lastSpace == len(tag)-1 {
		return 0, false
	}
	numPart := tag[lastSpace+1:]
	var n int64
	for _, c := range numPart {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
