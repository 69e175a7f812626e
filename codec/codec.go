// Package codec turns cached values into bytes and back.
//
// The cache frames whatever a Codec produces, so codecs never see generations,
// deadlines or absence markers. Decode may receive a slice that aliases tier
// memory and must not retain it.
package codec

import "errors"

// ErrPayloadTooLarge is returned by Limit when a payload exceeds MaxDecode.
var ErrPayloadTooLarge = errors.New("codec: payload too large")

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
