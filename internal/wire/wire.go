package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindValue  byte = 1
	kindAbsent byte = 2

	hdrLen = 4 + 1 + 1 + 8 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("tiercache: corrupt entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

// Frame is one cache entry as stored in a single tier.
// The same logical entry is framed separately per tier since ExpireAt is tier-local.
type Frame struct {
	Absent     bool
	Gen        uint64
	ExpireAt   int64 // unix nanos; 0 => no expiry
	PromoteTTL int64 // nanos; L1 ttl applied when an L2 hit is promoted, 0 => do not promote
	Payload    []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Expired reports whether the frame deadline is at or before now (unix nanos).
func (f Frame) Expired(now int64) bool {
	return f.ExpireAt != 0 && now >= f.ExpireAt
}

// Encode lays out:
//
//	magic(4) | ver(1) | kind(1) | gen(u64 be) | expireAt(i64 be) | promoteTTL(i64 be) | vlen(u32 be) | payload(vlen)
//
// Absent frames always carry an empty payload.
func Encode(f Frame) []byte {
	payload := f.Payload
	kind := kindValue
	if f.Absent {
		kind = kindAbsent
		payload = nil
	}

	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], f.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.ExpireAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.PromoteTTL))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses a frame. Payload aliases b (zero-copy).
// Trailing bytes, unknown kinds and absent frames with a payload are rejected.
func Decode(b []byte) (Frame, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	var f Frame
	switch b[5] {
	case kindValue:
	case kindAbsent:
		f.Absent = true
	default:
		return Frame{}, ErrCorrupt
	}

	off := 6
	f.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	f.ExpireAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	f.PromoteTTL = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if f.ExpireAt < 0 || f.PromoteTTL < 0 {
		return Frame{}, ErrCorrupt
	}

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off { // strict framing: exact length, no trailing bytes
		return Frame{}, ErrCorrupt
	}
	if f.Absent && vlen != 0 {
		return Frame{}, ErrCorrupt
	}
	if vlen > 0 {
		f.Payload = b[off : off+vlen]
	}
	return f, nil
}
