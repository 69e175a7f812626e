package codec

import "fmt"

// Limit wraps another codec and refuses to decode payloads longer than
// MaxDecode bytes. Encode is forwarded unchanged. MaxDecode <= 0 disables
// the check.
//
// Useful in front of a shared L2 that other processes can write to.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
