package wire

// EncodeStartupMessage builds the initial, tag-less connection message
// carrying the protocol version and session parameters (user, database, ...).
func EncodeStartupMessage(params map[string]string) []byte {
	w := newBodyWriter()
	defer w.release()

	w.int32(ProtocolVersion3)
	for k, v := range params {
		w.cstring(k)
		w.cstring(v)
	}
	w.byte(0)

	return frame(0, w.bytes())
}

// EncodeCancelRequest builds the startup-class cancel message sent on the
// auxiliary connection: request code, backend PID, secret key (§6).
func EncodeCancelRequest(backendPID, secretKey int32) []byte {
	w := newBodyWriter()
	defer w.release()

	w.int32(CancelRequestCode)
	w.int32(backendPID)
	w.int32(secretKey)

	return frame(0, w.bytes())
}

// EncodePasswordMessage encodes a cleartext or SCRAM response payload.
func EncodePasswordMessage(payload []byte) []byte {
	w := newBodyWriter()
	defer w.release()
	w.raw(payload)
	w.byte(0)
	return frame(PasswordMsg, w.bytes())
}

// EncodeParse builds a Parse message: statement name (empty = unnamed), SQL
// text, and optional parameter type OIDs (may be empty to let the server
// infer types).
func EncodeParse(name, sql string, paramOIDs []OID) []byte {
	w := newBodyWriter()
	defer w.release()

	w.cstring(name)
	w.cstring(sql)
	w.int16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		w.int32(int32(oid))
	}

	return frame(Parse, w.bytes())
}

// BindParam is one bound parameter: pre-encoded value bytes (nil = SQL NULL)
// and its wire format (text/binary).
type BindParam struct {
	Value  []byte
	Format int16
}

// EncodeBind builds a Bind message binding portal to statement with the
// given parameters and the requested result column format codes.
func EncodeBind(portal, statement string, params []BindParam, resultFormats []int16) []byte {
	w := newBodyWriter()
	defer w.release()

	w.cstring(portal)
	w.cstring(statement)

	w.int16(int16(len(params)))
	for _, p := range params {
		w.int16(p.Format)
	}

	w.int16(int16(len(params)))
	for _, p := range params {
		if p.Value == nil {
			w.int32(-1)
			continue
		}
		w.int32(int32(len(p.Value)))
		w.raw(p.Value)
	}

	w.int16(int16(len(resultFormats)))
	for _, f := range resultFormats {
		w.int16(f)
	}

	return frame(Bind, w.bytes())
}

// DescribeTarget selects whether Describe targets a prepared statement or a
// portal.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

// EncodeDescribe builds a Describe message.
func EncodeDescribe(target DescribeTarget, name string) []byte {
	w := newBodyWriter()
	defer w.release()

	w.byte(byte(target))
	w.cstring(name)

	return frame(Describe, w.bytes())
}

// EncodeExecute builds an Execute message. rowLimit == 0 means "no limit,
// fetch all rows"; a positive rowLimit requests at most that many rows and
// triggers a PortalSuspended reply if more remain (§4.6 cursor mode).
func EncodeExecute(portal string, rowLimit int32) []byte {
	w := newBodyWriter()
	defer w.release()

	w.cstring(portal)
	w.int32(rowLimit)

	return frame(Execute, w.bytes())
}

// EncodeCloseStatement/EncodeClosePortal build a Close message for the named
// statement or portal.
func EncodeCloseStatement(name string) []byte { return encodeClose('S', name) }
func EncodeClosePortal(name string) []byte    { return encodeClose('P', name) }

func encodeClose(kind byte, name string) []byte {
	w := newBodyWriter()
	defer w.release()

	w.byte(kind)
	w.cstring(name)

	return frame(Close, w.bytes())
}

// EncodeSync builds a Sync message: no body.
func EncodeSync() []byte {
	return frame(Sync, nil)
}

// EncodeFlush builds a Flush message: no body.
func EncodeFlush() []byte {
	return frame(Flush, nil)
}

// EncodeQuery builds a simple-query-mode Query message with the SQL text
// already carrying any inline literal substitution (§4.6 simple mode).
func EncodeQuery(sql string) []byte {
	w := newBodyWriter()
	defer w.release()
	w.cstring(sql)
	return frame(Query, w.bytes())
}

// EncodeTerminate builds a Terminate message: no body.
func EncodeTerminate() []byte {
	return frame(Terminate, nil)
}
