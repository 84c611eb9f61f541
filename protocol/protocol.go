// Package protocol implements the Memcached binary protocol: opcode
// constants, request packet builders, and response packet parsing.
//
// Wire layout (24-byte header, big-endian):
//
//	0      magic (0x80 request / 0x81 response)
//	1      opcode
//	2-3    key length
//	4      extras length
//	5      data type (always 0)
//	6-7    vbucket id (request) / status (response)
//	8-11   total body length
//	12-15  opaque
//	16-23  CAS
//
// Body order is extras, key, value.
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/heimuheimu/naivecache-sub000/internal/bytesutil"
)

// Magic bytes.
const (
	ReqMagic = 0x80
	ResMagic = 0x81
)

// Opcodes. The set named by spec.md plus the supplemental opcodes the
// teacher's server (pkg/server/binary.go) already implements.
const (
	OpGet       = 0x00
	OpSet       = 0x01
	OpAdd       = 0x02
	OpReplace   = 0x03
	OpDelete    = 0x04
	OpIncrement = 0x05
	OpDecrement = 0x06
	OpQuit      = 0x07
	OpFlush     = 0x08
	OpGetQ      = 0x09
	OpNoop      = 0x0a
	OpVersion   = 0x0b
	OpGetK      = 0x0c
	OpGetKQ     = 0x0d
	OpAppend    = 0x0e
	OpPrepend   = 0x0f
	OpTouch     = 0x1c
	OpGAT       = 0x1d
	OpGATK      = 0x1e
)

// Status codes.
const (
	StatusNoError             = 0x0000
	StatusKeyNotFound         = 0x0001
	StatusKeyExists           = 0x0002
	StatusValueTooLarge       = 0x0003
	StatusInvalidArgs         = 0x0004
	StatusItemNotStored       = 0x0005
	StatusNonNumeric          = 0x0006
	StatusWrongVBucket        = 0x0007
	StatusAuthError           = 0x0008
	StatusAuthContinue        = 0x0009
	StatusUnknownCommand      = 0x0081
	StatusOutOfMemory         = 0x0082
	StatusNotSupported        = 0x0083
	StatusInternalError       = 0x0084
	StatusBusy                = 0x0085
	StatusTemporaryFailure    = 0x0086
)

var statusMessages = map[uint16]string{
	StatusNoError:          "No error",
	StatusKeyNotFound:      "Key not found",
	StatusKeyExists:        "Key exists",
	StatusValueTooLarge:    "Value too large",
	StatusInvalidArgs:      "Invalid arguments",
	StatusItemNotStored:    "Item not stored",
	StatusNonNumeric:       "Incr/Decr on non-numeric value",
	StatusWrongVBucket:     "Wrong vbucket",
	StatusAuthError:        "Auth error",
	StatusAuthContinue:     "Auth continue",
	StatusUnknownCommand:   "Unknown command",
	StatusOutOfMemory:      "Out of memory",
	StatusNotSupported:     "Not supported",
	StatusInternalError:    "Internal error",
	StatusBusy:             "Busy",
	StatusTemporaryFailure: "Temporary failure",
}

// StatusMessage returns the fixed error string for status, or a
// synthesized "Unknown error" message for an unrecognized code.
func StatusMessage(status uint16) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error. Status: hi=0x%02x, lo=0x%02x", status>>8, status&0xff)
}

// Sentinel errors for protocol-level failures.
var (
	// ErrStreamClosed indicates the peer closed the connection (EOF
	// before a full 24-byte header could be read).
	ErrStreamClosed = errors.New("protocol: stream closed")
	// ErrBadMagic indicates a response with a magic byte other than
	// ResMagic.
	ErrBadMagic = errors.New("protocol: bad magic byte")
	// ErrOpcodeMismatch indicates a response whose opcode does not
	// match the request it was matched to — a fatal protocol desync.
	ErrOpcodeMismatch = errors.New("protocol: opcode mismatch")
)

const HeaderSize = 24

// Header is the 24-byte packet header, request or response.
type Header struct {
	Magic      uint8
	Opcode     uint8
	KeyLength  uint16
	ExtrasLength uint8
	DataType   uint8
	VBucketOrStatus uint16
	TotalBodyLength uint32
	Opaque     uint32
	CAS        uint64
}

// Status returns VBucketOrStatus interpreted as a response status.
func (h Header) Status() uint16 { return h.VBucketOrStatus }

// Encode writes h into buf[0:24].
func (h Header) Encode(buf []byte) {
	buf[0] = h.Magic
	buf[1] = h.Opcode
	bytesutil.PutUint16(buf, 2, int(h.KeyLength))
	buf[4] = h.ExtrasLength
	buf[5] = h.DataType
	bytesutil.PutUint16(buf, 6, int(h.VBucketOrStatus))
	bytesutil.PutUint32(buf, 8, h.TotalBodyLength)
	bytesutil.PutUint32(buf, 12, h.Opaque)
	bytesutil.PutUint64(buf, 16, h.CAS)
}

// DecodeHeader parses a 24-byte header.
func DecodeHeader(buf []byte) Header {
	return Header{
		Magic:           buf[0],
		Opcode:          buf[1],
		KeyLength:       bytesutil.Uint16(buf, 2),
		ExtrasLength:    buf[4],
		DataType:        buf[5],
		VBucketOrStatus: bytesutil.Uint16(buf, 6),
		TotalBodyLength: bytesutil.Uint32(buf, 8),
		Opaque:          bytesutil.Uint32(buf, 12),
		CAS:             bytesutil.Uint64(buf, 16),
	}
}

// Request is a fully-built outgoing packet plus the fields a Response is
// matched against.
type Request struct {
	Opcode byte
	Key    []byte
	Bytes  []byte // complete wire bytes: header + extras + key + value
}

// Response is an immutable, fully-parsed incoming packet.
type Response struct {
	Opcode byte
	Status uint16
	Opaque uint32
	CAS    uint64
	Extras []byte
	Key    []byte
	Value  []byte
}

// Success reports whether the response status indicates success.
func (r *Response) Success() bool { return r.Status == StatusNoError }

// KeyNotFound reports whether the response is a miss.
func (r *Response) KeyNotFound() bool { return r.Status == StatusKeyNotFound }

// Err returns nil on success, nil on a key-not-found miss (callers
// distinguish that case explicitly), or an error built from the fixed
// status-message table otherwise.
func (r *Response) Err() error {
	if r.Status == StatusNoError || r.Status == StatusKeyNotFound {
		return nil
	}
	return fmt.Errorf("protocol: %s (status 0x%04x)", StatusMessage(r.Status), r.Status)
}

// ReadResponse reads exactly one response packet from r.
//
// An EOF before a full header is read returns ErrStreamClosed so the
// caller (the channel's IO loop) can treat it as a fatal, non-logged
// condition rather than an I/O error.
func ReadResponse(r io.Reader) (*Response, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrStreamClosed
		}
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}

	h := DecodeHeader(headerBuf)
	if h.Magic != ResMagic {
		return nil, fmt.Errorf("%w: got 0x%02x", ErrBadMagic, h.Magic)
	}

	body := make([]byte, h.TotalBodyLength)
	if h.TotalBodyLength > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrStreamClosed
			}
			return nil, fmt.Errorf("protocol: read body: %w", err)
		}
	}

	extrasLen := int(h.ExtrasLength)
	keyLen := int(h.KeyLength)
	valueLen := int(h.TotalBodyLength) - extrasLen - keyLen
	if valueLen < 0 {
		return nil, fmt.Errorf("protocol: negative value length (extras=%d key=%d total=%d)", extrasLen, keyLen, h.TotalBodyLength)
	}

	resp := &Response{
		Opcode: h.Opcode,
		Status: h.VBucketOrStatus,
		Opaque: h.Opaque,
		CAS:    h.CAS,
	}
	if extrasLen > 0 {
		resp.Extras = body[:extrasLen]
	}
	if keyLen > 0 {
		resp.Key = body[extrasLen : extrasLen+keyLen]
	}
	if valueLen > 0 {
		resp.Value = body[extrasLen+keyLen:]
	}
	return resp, nil
}
