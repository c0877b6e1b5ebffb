// Package wire frames stored pool entries. Each entry carries the
// generation it was written under so readers can reject values that were
// invalidated after the write.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("leasepool: corrupt stored entry")
	magic4     = [...]byte{'L', 'E', 'A', 'S'}
)

const header = 4 + 1 + 8 + 4 // magic | ver | gen(u64 be) | vlen(u32 be)

// Encode frames a payload under the given generation:
// magic(4) | ver(1) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func Encode(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(header + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode validates the frame strictly: bad magic, wrong version, short
// buffers, or trailing bytes all return ErrCorrupt. The payload aliases b.
func Decode(b []byte) (gen uint64, payload []byte, err error) {
	if len(b) < header || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return 0, nil, ErrCorrupt
	}

	off := 5
	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || off+vlen != len(b) {
		return 0, nil, ErrCorrupt
	}

	return gen, b[off : off+vlen], nil
}
