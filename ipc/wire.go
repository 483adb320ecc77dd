// Package ipc implements the cross-process handle mechanism from
// spec.md §4.5: a producer exports an allocation as an opaque byte
// blob, a consumer opens that blob against its own pool and recovers
// a pointer to the same underlying memory. The wire format and
// compatibility checks live here; the actual memory-sharing mechanics
// are each provider's own IPC sub-vtable (package provider).
package ipc

import "encoding/binary"

// headerSize is the fixed UMF-level prefix every IPC blob carries,
// ahead of the provider-opaque bytes: pid (4) + base_size (8) + offset
// (8). spec.md §6 states the wire format as "16 + n_p" in prose but
// its own byte layout (0..3, 4..11, 12..19) adds to 20; this
// implementation follows the byte layout, since it is the
// bit-exact source of truth.
const headerSize = 20

// header is the UMF-level envelope prepended to every provider-opaque
// IPC blob.
type header struct {
	pid      int32
	baseSize uint64
	offset   uint64
}

func (h header) encode(out []byte) {
	binary.LittleEndian.PutUint32(out[0:4], uint32(h.pid))
	binary.LittleEndian.PutUint64(out[4:12], h.baseSize)
	binary.LittleEndian.PutUint64(out[12:20], h.offset)
}

func decodeHeader(blob []byte) header {
	return header{
		pid:      int32(binary.LittleEndian.Uint32(blob[0:4])),
		baseSize: binary.LittleEndian.Uint64(blob[4:12]),
		offset:   binary.LittleEndian.Uint64(blob[12:20]),
	}
}
