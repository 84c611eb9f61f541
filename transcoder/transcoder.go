// Package transcoder encodes/decodes Go values to/from the byte
// payloads stored by Memcached, with a 4-byte flags header and
// threshold-gated LZF compression.
//
// Flags byte 0 carries the transcoder version (always 1 on encode);
// flags byte 1 is the compression bit. A flags[0] of 0 marks a payload
// written by the server itself as an ASCII decimal number (the result
// of INCREMENT/DECREMENT), which Decode parses instead of gob-decoding.
package transcoder

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/zhuyie/golzf"
)

// ErrUnsupportedFlags is returned when flags[0] is neither 0 nor 1.
var ErrUnsupportedFlags = errors.New("transcoder: unsupported flags value")

const (
	flagsVersion    = 1
	flagsCompressed = 1
)

func init() {
	// gob requires concrete types stored in an interface value to be
	// registered before they can cross an Encode/Decode boundary.
	// Register the common built-ins so callers get numbers, strings
	// and byte slices for free; a caller storing its own struct types
	// must gob.Register them once at program startup, the same
	// requirement Go's gob package always has for interface values.
	gob.Register("")
	gob.Register([]byte(nil))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register(false)
}

// CompressionEvent is invoked with (preLength, postLength) after every
// successful compression. The default is a no-op; callers (typically a
// DirectClient's metrics hook) may replace it per Transcoder instance.
type CompressionEvent func(preLength, postLength int)

// Transcoder encodes values above Threshold bytes with LZF compression.
type Transcoder struct {
	Threshold int
	OnCompress CompressionEvent
}

// New returns a Transcoder with the given compression threshold in
// bytes (spec.md default: 65536) and a no-op compression observer.
func New(threshold int) *Transcoder {
	return &Transcoder{Threshold: threshold, OnCompress: func(int, int) {}}
}

// Encode serializes v with gob, compresses it with LZF if the
// serialized length exceeds t.Threshold, and returns the 4-byte flags
// header alongside the resulting body.
func (t *Transcoder) Encode(v any) (flags [4]byte, body []byte, err error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return flags, nil, fmt.Errorf("transcoder: encode: %w", err)
	}
	raw := buf.Bytes()

	flags[0] = flagsVersion

	if t.Threshold > 0 && len(raw) > t.Threshold {
		compressed := make([]byte, len(raw)+64)
		n, err := golzf.Compress(raw, compressed)
		if err == nil && n > 0 && n < len(raw) {
			flags[1] = flagsCompressed
			if t.OnCompress != nil {
				t.OnCompress(len(raw), n)
			}
			return flags, compressed[:n], nil
		}
		// Compression didn't help (or failed) — fall through and store
		// the raw serialized bytes uncompressed.
	}

	return flags, raw, nil
}

// Decode interprets buf[valueOffset:valueOffset+valueLength] according
// to the flags byte at flags[0]:
//
//   - flags[0] == 1: optionally LZF-decompress, then gob-decode into v.
//   - flags[0] == 0: parse as an ASCII decimal integer (the incr/decr
//     wire representation) and return it as int64.
//   - any other value: ErrUnsupportedFlags.
func Decode(flags [4]byte, buf []byte, valueOffset, valueLength int) (any, error) {
	payload := buf[valueOffset : valueOffset+valueLength]

	switch flags[0] {
	case 1:
		raw := payload
		if flags[1] == flagsCompressed {
			decompressed := make([]byte, len(payload)*8+64)
			for {
				n, err := golzf.Decompress(payload, decompressed)
				if err == nil {
					raw = decompressed[:n]
					break
				}
				if len(decompressed) > 1<<28 {
					return nil, fmt.Errorf("transcoder: decompress: %w", err)
				}
				decompressed = make([]byte, len(decompressed)*2)
			}
		}
		var v any
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
			return nil, fmt.Errorf("transcoder: decode: %w", err)
		}
		return v, nil
	case 0:
		return decodeASCIIInt(payload)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedFlags, flags[0])
	}
}

// decodeASCIIInt parses bytes in [0x30..0x39] as an unsigned decimal
// number, the representation Memcached uses for incr/decr values.
func decodeASCIIInt(payload []byte) (int64, error) {
	var v int64
	if len(payload) == 0 {
		return 0, errors.New("transcoder: empty numeric payload")
	}
	for _, b := range payload {
		if b < 0x30 || b > 0x39 {
			return 0, fmt.Errorf("transcoder: non-numeric byte 0x%02x in incr/decr payload", b)
		}
		v = v*10 + int64(b-0x30)
	}
	return v, nil
}
