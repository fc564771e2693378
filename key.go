package querysync

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Attrs is a flat attribute record segment (list filters, query params).
// Attrs compare by structure, not identity: two records with equal contents
// are the same segment regardless of construction order.
type Attrs map[string]any

// Key is an ordered hierarchical cache key. Segments are strings, numbers
// or Attrs; earlier segments are broader scopes, so ["todos"] covers
// ["todos", "list"] covers ["todos", "list", Attrs{"done": false}].
type Key []any

// Wildcard matches any single segment at its position in a pattern.
// It is only meaningful inside patterns passed to Matches.
var Wildcard = wildcardSegment{}

type wildcardSegment struct{}

// canonicalEnc produces RFC 8949 Core Deterministic encodings so equal
// segments always encode to equal bytes: map order and integer width do not
// leak into the address. canonicalDec reverses them with string-keyed maps
// so keys round-trip through dehydration.
var (
	canonicalEnc cbor.EncMode
	canonicalDec cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("querysync: cbor enc mode: " + err.Error())
	}
	canonicalEnc = em

	dm, err := (cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}).DecMode()
	if err != nil {
		panic("querysync: cbor dec mode: " + err.Error())
	}
	canonicalDec = dm
}

// BuildKey concatenates a resource name with ordered qualifier segments.
// The resource name must be non-empty; segments are not validated.
func BuildKey(resource string, segments ...any) (Key, error) {
	if resource == "" {
		return nil, &InvalidKeyError{Op: "BuildKey", Reason: "empty resource name"}
	}
	k := make(Key, 0, 1+len(segments))
	k = append(k, resource)
	return append(k, segments...), nil
}

// ListKey addresses a resource collection: [resource, "list"], with the
// filter record appended when given.
func ListKey(resource string, filters Attrs) Key {
	if filters == nil {
		return Key{resource, "list"}
	}
	return Key{resource, "list", filters}
}

// DetailKey addresses a single record: [resource, "detail", id].
func DetailKey(resource string, id any) Key {
	return Key{resource, "detail", id}
}

// ScopedKey addresses per-principal data: ["scope", scopeID, resource, extra...].
func ScopedKey(scopeID, resource string, extra ...any) Key {
	k := make(Key, 0, 3+len(extra))
	k = append(k, "scope", scopeID, resource)
	return append(k, extra...)
}

// Matches reports whether pattern constrains k: the pattern must be no
// longer than k, and at every pattern position Wildcard matches anything
// while a concrete segment must equal the key's segment there. Segment
// order is significant; key positions past the pattern's length are
// unconstrained. An empty pattern matches every key.
func (k Key) Matches(pattern Key) bool {
	if len(pattern) > len(k) {
		return false
	}
	for i, p := range pattern {
		if _, ok := p.(wildcardSegment); ok {
			continue
		}
		if !segmentEqual(k[i], p) {
			return false
		}
	}
	return true
}

// Canonical returns the key's canonical encoding, the exact byte form the
// storage address derives from. Stable across processes; dehydration stores
// it verbatim so restored entries keep their addresses.
func (k Key) Canonical() ([]byte, error) {
	b, err := canonicalEnc.Marshal([]any(k))
	if err != nil {
		return nil, &SerializationError{Op: "key encode", Err: err}
	}
	return b, nil
}

// DecodeKey rebuilds a key from its canonical encoding. Attribute segments
// come back as map[string]any; integer segments come back width-normalized.
// The rebuilt key hashes identically to the original.
func DecodeKey(b []byte) (Key, error) {
	var segs []any
	if err := canonicalDec.Unmarshal(b, &segs); err != nil {
		return nil, &SerializationError{Op: "key decode", Err: err}
	}
	return Key(segs), nil
}

// Hash returns the key's storage address: the hex form of its canonical
// encoding. Equal keys hash equal. Numerically equal integer segments of
// different widths produce the same address on purpose - a DB id held as
// int64 and an int literal must name the same entry.
func (k Key) Hash() (string, error) {
	b, err := k.Canonical()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// String renders the key for logs. Not a stable address; use Hash.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range k {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if _, ok := s.(wildcardSegment); ok {
			sb.WriteByte('*')
			continue
		}
		fmt.Fprintf(&sb, "%v", s)
	}
	sb.WriteByte(']')
	return sb.String()
}

// segmentEqual compares segments by canonical encoding, so Attrs compare
// structurally and equal ints compare equal across widths. Segments the
// encoder rejects never compare equal.
func segmentEqual(a, b any) bool {
	ab, err := canonicalEnc.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := canonicalEnc.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
