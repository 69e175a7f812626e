package codec

// Bytes is the codec for []byte values. Decode copies, since the input may
// alias tier memory.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

func (Bytes) Decode(b []byte) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

// String stores Go strings as their UTF-8 bytes, unvalidated.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
