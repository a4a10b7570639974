// Package wire implements the binary request framing shared by server and
// client.
//
// A frame is an 8-byte little-endian header followed by the body:
//
//	op       int32
//	bodyLen  int32
//	body     bodyLen bytes, NUL-terminated ASCII
//
// The body always carries a trailing NUL, so an empty payload still has
// bodyLen 1. Payload fields are whitespace-separated decimal/text tokens.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Op is the operation tag of a frame.
type Op int32

// The closed set of operation tags.
const (
	OpResponse Op = iota
	OpRegister
	OpLogin
	OpLogout
	OpGetBalance
	OpDeposit
	OpWithdraw
	OpTransfer
	OpChangePassword
)

// MaxBody is the maximum body length on the wire, terminator included.
// Encoded payloads longer than MaxBody-1 are truncated silently.
const MaxBody = 256

const headerLen = 8

// Response status codes carried as the first body token of mutating
// operations.
const (
	StatusOK          = 0 // operation applied
	StatusRejected    = 1 // insufficient funds / bad credentials / wrong password
	StatusNotFound    = 2 // transfer destination does not exist
	StatusBusy        = 3 // transfer destination held by a live session
	StatusWriteFailed = 4 // ledger write or record mismatch
)

// ErrBadFrame indicates a header whose declared body length is unusable.
var ErrBadFrame = errors.New("wire: bad frame header")

var opNames = map[Op]string{
	OpResponse:       "response",
	OpRegister:       "register",
	OpLogin:          "login",
	OpLogout:         "logout",
	OpGetBalance:     "get_balance",
	OpDeposit:        "deposit",
	OpWithdraw:       "withdraw",
	OpTransfer:       "transfer",
	OpChangePassword: "change_password",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int32(op))
}

// Frame is one decoded request or response. Payload excludes the
// terminator.
type Frame struct {
	Op      Op
	Payload string
}

// Tokens splits the payload into its whitespace-separated fields.
func (f Frame) Tokens() []string {
	return strings.Fields(f.Payload)
}

// Write encodes and writes one frame. Payloads longer than MaxBody-1 bytes
// are truncated, never rejected.
func Write(w io.Writer, op Op, payload string) error {
	if len(payload) > MaxBody-1 {
		payload = payload[:MaxBody-1]
	}

	buf := make([]byte, headerLen+len(payload)+1)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)+1))
	copy(buf[headerLen:], payload)
	// buf's final byte is already the NUL terminator.

	_, err := w.Write(buf)
	return err
}

// Read reads exactly one frame: first the fixed header, then the declared
// body length. Message boundaries come only from the header, so r must be a
// reliable byte stream.
func Read(r io.Reader) (Frame, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	op := Op(int32(binary.LittleEndian.Uint32(header[0:4])))
	bodyLen := int32(binary.LittleEndian.Uint32(header[4:8]))
	if bodyLen < 1 || bodyLen > MaxBody {
		return Frame{}, fmt.Errorf("%w: body length %d", ErrBadFrame, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	// Trim at the first NUL; the terminator is not part of the payload.
	payload := body[:bodyLen-1]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}

	return Frame{Op: op, Payload: string(payload)}, nil
}
