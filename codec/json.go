package codec

import "encoding/json"

// JSONCodec serializes values with encoding/json. Slower and larger than
// Msgpack but human-inspectable, which helps when debugging persisted
// snapshots in a shared store.
type JSONCodec[V any] struct{}

var _ Codec[struct{}] = JSONCodec[struct{}]{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
