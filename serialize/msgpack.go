package serialize

import (
	"github.com/vmihailenco/msgpack/v5"

	"entitydb/bufpool"
)

// MsgpackCodec is the default Codec, grounded on andreyvit/edb's
// pairing of bbolt with vmihailenco/msgpack for exactly this role: a
// compact, deterministic binary encoding for arbitrary Go structs.
type MsgpackCodec struct{}

// Marshal encodes v into a pooled buffer and copies out the result,
// so the encoder's output buffer is reused rather than allocated for
// every save (a new msgpack.Encoder is still created per call;
// spec.md §4.4 runs through this path on every write).
func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	buf := bufpool.GetBuffer()
	defer bufpool.PutBuffer(buf)

	enc := msgpack.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
