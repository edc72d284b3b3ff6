package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeParseRoundTrip(t *testing.T) {
	msg := EncodeParse("stmt1", "SELECT $1", []OID{OIDInt4})
	require.Equal(t, byte(Parse), msg[0])

	r := bytes.NewReader(msg)
	f, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, byte(Parse), f.Tag)
}

func TestEncodeBindDecodeViaBackendShapes(t *testing.T) {
	params := []BindParam{
		{Value: []byte("42"), Format: FormatText},
		{Value: nil, Format: FormatText},
	}
	msg := EncodeBind("", "stmt1", params, []int16{FormatText})
	r := bytes.NewReader(msg)
	f, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, byte(Bind), f.Tag)
}

func TestDecodeRowDescriptionAndDataRow(t *testing.T) {
	w := newBodyWriter()
	w.int16(1)
	w.cstring("id")
	w.int32(0)
	w.int16(0)
	w.int32(int32(OIDInt4))
	w.int16(4)
	w.int32(-1)
	w.int16(FormatText)
	body := w.bytes()
	w.release()

	msg, err := Decode(Frame{Tag: RowDescriptionMsg, Body: body})
	require.NoError(t, err)
	rd, ok := msg.(RowDescription)
	require.True(t, ok)
	require.Len(t, rd.Fields, 1)
	require.Equal(t, "id", rd.Fields[0].Name)
	require.Equal(t, OIDInt4, rd.Fields[0].DataTypeOID)

	dw := newBodyWriter()
	dw.int16(1)
	dw.int32(2)
	dw.raw([]byte("42"))
	drBody := dw.bytes()
	dw.release()

	msg2, err := Decode(Frame{Tag: DataRowMsg, Body: drBody})
	require.NoError(t, err)
	dr, ok := msg2.(DataRow)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("42")}, dr.Values)
}

func TestParseCommandTag(t *testing.T) {
	cases := []struct {
		tag   string
		count int64
		ok    bool
	}{
		{"SELECT 5", 5, true},
		{"INSERT 0 3", 3, true},
		{"UPDATE 2", 2, true},
		{"BEGIN", 0, false},
		{"DEALLOCATE", 0, false},
	}
	for _, c := range cases {
		got, ok := parseCommandTag(c.tag)
		require.Equal(t, c.ok, ok, c.tag)
		if ok {
			require.Equal(t, c.count, got, c.tag)
		}
	}
}

func TestClassifyErrorQueryCanceled(t *testing.T) {
	pe := ClassifyError(ErrorResponse{SQLSTATE: SQLStateQueryCanceled, Message: "canceling statement due to user request"})
	require.Equal(t, KindQueryCanceled, pe.Kind)
}

func TestClassifyErrorWillHealOnRetry(t *testing.T) {
	pe := ClassifyError(ErrorResponse{SQLSTATE: SQLStateInvalidSQLStatementName, Message: "statement does not exist"})
	require.Equal(t, KindWillHealOnRetry, pe.Kind)

	pe2 := ClassifyError(ErrorResponse{SQLSTATE: SQLStateFeatureNotSupported, Message: "cached plan must not change result type"})
	require.Equal(t, KindWillHealOnRetry, pe2.Kind)

	pe3 := ClassifyError(ErrorResponse{SQLSTATE: SQLStateFeatureNotSupported, Message: "unrelated unsupported feature"})
	require.Equal(t, KindServerError, pe3.Kind)
}

func TestEncodeCancelRequest(t *testing.T) {
	msg := EncodeCancelRequest(1234, 5678)
	// no tag byte for cancel request: 4-byte length + 4+4+4 body
	require.Equal(t, 16, len(msg))
}
