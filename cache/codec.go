package cache

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes cacheable values to opaque byte payloads and back.
// Implementations must satisfy the round-trip law: for every supported
// value v, Deserialize(Serialize(v)) reproduces both the value and its
// type, including empty collections and nil.
type Codec interface {
	Serialize(value any) ([]byte, error)
	Deserialize(data []byte, dest any) error
}

// msgpackCodec is the default Codec backed by msgpack. It supports nil,
// booleans, integers, floats, strings, slices, string-keyed maps, single
// entity structs and homogeneous entity slices.
type msgpackCodec struct{}

// NewMsgpackCodec returns the default msgpack-backed codec.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

// Serialize encodes value into an opaque payload. Failures are reported as
// *SerializationError.
func (msgpackCodec) Serialize(value any) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return data, nil
}

// Deserialize decodes data into dest, which must be a non-nil pointer of
// the expected shape. Malformed bytes and shape mismatches both surface as
// *DeserializationError so callers can trigger targeted corruption
// recovery instead of treating them as generic failures.
func (msgpackCodec) Deserialize(data []byte, dest any) error {
	if err := msgpack.Unmarshal(data, dest); err != nil {
		return &DeserializationError{Err: err}
	}
	return nil
}

// SafeSerialize is the non-throwing variant of Codec.Serialize. It returns
// fallback when encoding fails, for call sites that must never propagate a
// codec error.
func SafeSerialize(c Codec, value any, fallback []byte) []byte {
	data, err := c.Serialize(value)
	if err != nil {
		return fallback
	}
	return data
}

// SafeDeserialize is the non-throwing variant of Codec.Deserialize. It
// returns fallback when the payload cannot be decoded as T.
func SafeDeserialize[T any](c Codec, data []byte, fallback T) T {
	var out T
	if err := c.Deserialize(data, &out); err != nil {
		return fallback
	}
	return out
}
