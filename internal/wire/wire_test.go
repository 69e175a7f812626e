package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Frame {
	t.Helper()
	f, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return f
}

func TestFrameRTValueAndAbsent(t *testing.T) {
	cases := []Frame{
		{Gen: 0, Payload: nil},
		{Gen: 42, ExpireAt: 1_700_000_000_000_000_000, PromoteTTL: int64(5e9), Payload: []byte("hello")},
		{Gen: math.MaxUint64, Payload: []byte{0, 1, 2, 3, 4}},
		{Absent: true, Gen: 7, ExpireAt: 99},
	}
	for _, tc := range cases {
		got := mustDecode(t, Encode(tc))
		if got.Absent != tc.Absent || got.Gen != tc.Gen || got.ExpireAt != tc.ExpireAt || got.PromoteTTL != tc.PromoteTTL {
			t.Fatalf("header mismatch: got %+v want %+v", got, tc)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestAbsentDropsPayloadOnEncode(t *testing.T) {
	f := mustDecode(t, Encode(Frame{Absent: true, Payload: []byte("ignored")}))
	if !f.Absent || len(f.Payload) != 0 {
		t.Fatalf("absent frame should carry no payload, got %+v", f)
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(Frame{Gen: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(Frame{Gen: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = 9
	if _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on unknown kind")
	}

	// vlen sits right before the payload
	vlenOff := hdrLen - 4
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[vlenOff:vlenOff+4], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := Decode(enc[:hdrLen-1]); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}

func TestAbsentWithPayloadIsCorrupt(t *testing.T) {
	enc := Encode(Frame{Gen: 1, Payload: []byte("abc")})
	enc[5] = kindAbsent
	if _, err := Decode(enc); err == nil {
		t.Fatalf("absent frame with payload must be rejected")
	}
}

func TestNegativeDeadlineIsCorrupt(t *testing.T) {
	enc := Encode(Frame{Gen: 1})
	// expireAt follows magic, ver, kind and gen
	binary.BigEndian.PutUint64(enc[14:22], uint64(math.MaxUint64))
	if _, err := Decode(enc); err == nil {
		t.Fatalf("negative expireAt must be rejected")
	}
}

func TestExpired(t *testing.T) {
	f := Frame{ExpireAt: 100}
	if f.Expired(99) {
		t.Fatalf("not expired before deadline")
	}
	if !f.Expired(100) {
		t.Fatalf("expired at deadline")
	}
	if (Frame{}).Expired(math.MaxInt64) {
		t.Fatalf("zero deadline never expires")
	}
}

func TestZeroCopyPayload(t *testing.T) {
	enc := Encode(Frame{Gen: 1, Payload: []byte("Z")})
	f := mustDecode(t, enc)
	f.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
