// Package codec provides value codecs for dehydrated cache entries. The
// engine runs every cached value through a Codec on its way into the
// persistence payload and back on hydrate. Msgpack is the default; JSON and
// CBOR are drop-in alternatives. LimitCodec guards against oversized
// payloads from shared stores.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
