package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes with fxamacker/cbor. Build it with NewCBOR or MustCBOR; the
// zero value has no modes and panics.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR builds a CBOR codec. With canonical set, map keys are sorted (RFC
// 8949 core deterministic encoding) so equal values encode to equal bytes.
// Duplicate map keys fail decoding.
func NewCBOR[V any](canonical bool) (CBOR[V], error) {
	opts := cbor.PreferredUnsortedEncOptions()
	if canonical {
		opts = cbor.CoreDetEncOptions()
	}
	opts.Time = cbor.TimeRFC3339Nano

	enc, err := opts.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dec, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: enc, dec: dec}, nil
}

func MustCBOR[V any](canonical bool) CBOR[V] {
	cc, err := NewCBOR[V](canonical)
	if err != nil {
		panic(err)
	}
	return cc
}

func (cc CBOR[V]) Encode(v V) ([]byte, error) { return cc.enc.Marshal(v) }

func (cc CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if err := cc.dec.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
