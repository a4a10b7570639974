package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		op      Op
		payload string
	}{
		{name: "EmptyBody", op: OpLogout, payload: ""},
		{name: "Credentials", op: OpLogin, payload: "alice 12345678901234567890"},
		{name: "Register", op: OpRegister, payload: "bob 42"},
		{name: "Amount", op: OpDeposit, payload: "500"},
		{name: "TransferFields", op: OpTransfer, payload: "carol 200"},
		{name: "Response", op: OpResponse, payload: "0 300"},
		{name: "MaxLength", op: OpResponse, payload: strings.Repeat("x", MaxBody-1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, tc.op, tc.payload))

			frame, err := Read(&buf)
			require.NoError(t, err)
			require.Equal(t, tc.op, frame.Op)
			require.Equal(t, tc.payload, frame.Payload)
			require.Equal(t, strings.Fields(tc.payload), frame.Tokens())
			require.Zero(t, buf.Len(), "frame must consume exactly its declared bytes")
		})
	}
}

func TestWriteTruncatesOversizedPayload(t *testing.T) {
	long := strings.Repeat("a", MaxBody+100)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, OpDeposit, long))
	require.Equal(t, 8+MaxBody, buf.Len())

	frame, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, long[:MaxBody-1], frame.Payload)
}

func TestEmptyBodyStillCarriesTerminator(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, OpLogout, ""))

	raw := buf.Bytes()
	require.Len(t, raw, 9)
	require.Equal(t, byte(1), raw[4], "declared body length must be 1")
	require.Equal(t, byte(0), raw[8], "body must be a lone NUL")
}

func TestReadRejectsBadBodyLength(t *testing.T) {
	testCases := []struct {
		name   string
		length int32
	}{
		{name: "Zero", length: 0},
		{name: "Negative", length: -5},
		{name: "TooLarge", length: MaxBody + 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			header := []byte{
				byte(OpDeposit), 0, 0, 0,
				byte(tc.length), byte(tc.length >> 8), byte(tc.length >> 16), byte(tc.length >> 24),
			}

			_, err := Read(bytes.NewReader(header))
			require.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestReadStopsPayloadAtEmbeddedNUL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, OpResponse, "0"))

	// Pad the body with garbage after the terminator, as a fixed-size
	// sender buffer would.
	raw := buf.Bytes()
	raw[4] = 4 // declared length now covers two junk bytes past the NUL
	raw = append(raw, 'z', 'z')

	frame, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "0", frame.Payload)
}
