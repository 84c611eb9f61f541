package protocol

import "github.com/heimuheimu/naivecache-sub000/internal/bytesutil"

// MaxKeyLength and MaxValueLength are the wire-level limits from spec.md §6.
const (
	MaxKeyLength   = 250
	MaxValueLength = 1048576
)

// buildPacket assembles header+extras+key+value into one contiguous
// byte slice. Per spec.md's Open Question 1, the total-body-length
// field is always written, even when it is zero.
func buildPacket(opcode byte, extras, key, value []byte) []byte {
	totalBody := uint32(len(extras) + len(key) + len(value))
	buf := make([]byte, HeaderSize+int(totalBody))

	h := Header{
		Magic:           ReqMagic,
		Opcode:          opcode,
		KeyLength:       uint16(len(key)),
		ExtrasLength:    uint8(len(extras)),
		TotalBodyLength: totalBody,
	}
	h.Encode(buf)

	off := HeaderSize
	off += copy(buf[off:], extras)
	off += copy(buf[off:], key)
	copy(buf[off:], value)
	return buf
}

// NewGet builds a GET request (no extras).
func NewGet(key []byte) *Request {
	return &Request{Opcode: OpGet, Key: key, Bytes: buildPacket(OpGet, nil, key, nil)}
}

// NewGetK builds a GETK request (no extras).
func NewGetK(key []byte) *Request {
	return &Request{Opcode: OpGetK, Key: key, Bytes: buildPacket(OpGetK, nil, key, nil)}
}

// NewGetKQ builds a quiet GETKQ request, used for all but the last key
// of a multi-get.
func NewGetKQ(key []byte) *Request {
	return &Request{Opcode: OpGetKQ, Key: key, Bytes: buildPacket(OpGetKQ, nil, key, nil)}
}

// NewDelete builds a DELETE request (no extras).
func NewDelete(key []byte) *Request {
	return &Request{Opcode: OpDelete, Key: key, Bytes: buildPacket(OpDelete, nil, key, nil)}
}

// storageExtras builds the 8-byte SET/ADD/REPLACE extras: flags + expiry.
func storageExtras(flags [4]byte, expiry uint32) []byte {
	extras := make([]byte, 8)
	copy(extras[0:4], flags[:])
	bytesutil.PutUint32(extras, 4, expiry)
	return extras
}

// NewSet builds a SET request.
func NewSet(key []byte, flags [4]byte, expiry uint32, value []byte) *Request {
	extras := storageExtras(flags, expiry)
	return &Request{Opcode: OpSet, Key: key, Bytes: buildPacket(OpSet, extras, key, value)}
}

// NewAdd builds an ADD request.
func NewAdd(key []byte, flags [4]byte, expiry uint32, value []byte) *Request {
	extras := storageExtras(flags, expiry)
	return &Request{Opcode: OpAdd, Key: key, Bytes: buildPacket(OpAdd, extras, key, value)}
}

// NewReplace builds a REPLACE request.
func NewReplace(key []byte, flags [4]byte, expiry uint32, value []byte) *Request {
	extras := storageExtras(flags, expiry)
	return &Request{Opcode: OpReplace, Key: key, Bytes: buildPacket(OpReplace, extras, key, value)}
}

// incrDecrExtras builds the 20-byte INCREMENT/DECREMENT extras: delta,
// initial value, expiry.
func incrDecrExtras(delta, initial uint64, expiry uint32) []byte {
	extras := make([]byte, 20)
	bytesutil.PutUint64(extras, 0, delta)
	bytesutil.PutUint64(extras, 8, initial)
	bytesutil.PutUint32(extras, 16, expiry)
	return extras
}

// NewIncrement builds an INCREMENT request.
func NewIncrement(key []byte, delta, initial uint64, expiry uint32) *Request {
	extras := incrDecrExtras(delta, initial, expiry)
	return &Request{Opcode: OpIncrement, Key: key, Bytes: buildPacket(OpIncrement, extras, key, nil)}
}

// NewDecrement builds a DECREMENT request.
func NewDecrement(key []byte, delta, initial uint64, expiry uint32) *Request {
	extras := incrDecrExtras(delta, initial, expiry)
	return &Request{Opcode: OpDecrement, Key: key, Bytes: buildPacket(OpDecrement, extras, key, nil)}
}

// NewTouch builds a TOUCH request: 4-byte expiry extras, no value.
func NewTouch(key []byte, expiry uint32) *Request {
	extras := make([]byte, 4)
	bytesutil.PutUint32(extras, 0, expiry)
	return &Request{Opcode: OpTouch, Key: key, Bytes: buildPacket(OpTouch, extras, key, nil)}
}

// NewGAT builds a GAT ("get and touch") request: 4-byte expiry extras.
func NewGAT(key []byte, expiry uint32) *Request {
	extras := make([]byte, 4)
	bytesutil.PutUint32(extras, 0, expiry)
	return &Request{Opcode: OpGAT, Key: key, Bytes: buildPacket(OpGAT, extras, key, nil)}
}

// NewGATK builds a GATK request: 4-byte expiry extras.
func NewGATK(key []byte, expiry uint32) *Request {
	extras := make([]byte, 4)
	bytesutil.PutUint32(extras, 0, expiry)
	return &Request{Opcode: OpGATK, Key: key, Bytes: buildPacket(OpGATK, extras, key, nil)}
}

// NewAppend builds an APPEND request (no extras).
func NewAppend(key, value []byte) *Request {
	return &Request{Opcode: OpAppend, Key: key, Bytes: buildPacket(OpAppend, nil, key, value)}
}

// NewPrepend builds a PREPEND request (no extras).
func NewPrepend(key, value []byte) *Request {
	return &Request{Opcode: OpPrepend, Key: key, Bytes: buildPacket(OpPrepend, nil, key, value)}
}

// NewNoop builds a NOOP request.
func NewNoop() *Request {
	return &Request{Opcode: OpNoop, Bytes: buildPacket(OpNoop, nil, nil, nil)}
}

// NewVersion builds a VERSION request.
func NewVersion() *Request {
	return &Request{Opcode: OpVersion, Bytes: buildPacket(OpVersion, nil, nil, nil)}
}
