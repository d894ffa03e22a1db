package codec

import "github.com/fxamacker/cbor/v2"

// CBOR is a Codec backed by fxamacker/cbor/v2 using its canonical encoding
// options. The zero value is ready to use.
type CBOR struct{}

func (CBOR) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (CBOR) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
