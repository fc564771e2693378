// Package wire frames persisted cache snapshots. The envelope carries the
// schema version and write time the restore path validates; the payload
// stays an opaque blob this package never inspects.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const version byte = 1

const maxVersionLen = 0xFFFF

var (
	ErrCorrupt = errors.New("querysync: corrupt snapshot")
	magic4     = [...]byte{'Q', 'S', 'N', 'P'}
)

// Snapshot is a decoded envelope. Payload aliases the decoded buffer
// (zero-copy); callers must not mutate the raw bytes while holding it.
type Snapshot struct {
	Version   string
	WrittenAt int64 // epoch milliseconds
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope: magic(4) | ver(1) | vlen(u16 be) | version(vlen) | writtenAt(i64 be, epoch ms) | plen(u32 be) | payload(plen)
func EncodeSnapshot(schemaVersion string, writtenAt int64, payload []byte) ([]byte, error) {
	if len(schemaVersion) > maxVersionLen {
		return nil, fmt.Errorf("querysync: schema version too long (%d bytes)", len(schemaVersion))
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("querysync: snapshot payload too large (%d bytes)", len(payload))
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 2 + len(schemaVersion) + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(schemaVersion)))
	buf.Write(u2[:])
	buf.WriteString(schemaVersion)

	binary.BigEndian.PutUint64(u8[:], uint64(writtenAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

func DecodeSnapshot(b []byte) (Snapshot, error) {
	const hdr = 4 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Snapshot{}, ErrCorrupt
	}

	off := 5

	// vlen
	vlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if vlen > len(b)-off {
		return Snapshot{}, ErrCorrupt
	}
	ver := string(b[off : off+vlen])
	off += vlen

	// writtenAt
	if off+8 > len(b) {
		return Snapshot{}, ErrCorrupt
	}
	writtenAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	// plen; must consume the rest exactly - trailing bytes are corruption
	if off+4 > len(b) {
		return Snapshot{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // overflow-safe exact bound
		return Snapshot{}, ErrCorrupt
	}

	return Snapshot{Version: ver, WrittenAt: writtenAt, Payload: b[off : off+plen]}, nil
}
