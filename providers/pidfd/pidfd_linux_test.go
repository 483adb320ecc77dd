package pidfd

import (
	"encoding/binary"
	"testing"

	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/provider/wrapping"
)

// fakeUpstream is a minimal IPCOps-implementing mock so the
// translation logic can be tested without a real fd-bearing backend.
type fakeUpstream struct {
	lastOpenedBlob []byte
}

func (f *fakeUpstream) Name() string                                   { return "fake" }
func (f *fakeUpstream) Alloc(size, alignment uintptr) (uintptr, error) { return 1, nil }
func (f *fakeUpstream) Free(ptr, size uintptr) error                   { return nil }
func (f *fakeUpstream) Close()                                         {}
func (f *fakeUpstream) RecommendedPageSize(size uintptr) uintptr       { return 4096 }
func (f *fakeUpstream) MinPageSize(ptr uintptr) uintptr                { return 4096 }
func (f *fakeUpstream) IPCHandleSize() int                             { return 12 }
func (f *fakeUpstream) GetIPCHandle(ptr, size uintptr, out []byte) error {
	return nil
}
func (f *fakeUpstream) PutIPCHandle(blob []byte) error { return nil }
func (f *fakeUpstream) OpenIPCHandle(blob []byte) (uintptr, error) {
	f.lastOpenedBlob = append([]byte(nil), blob...)
	return 0xABC, nil
}
func (f *fakeUpstream) CloseIPCHandle(ptr, size uintptr) error { return nil }

func TestOpenIPCHandleFromPIDTranslatesLeadingFD(t *testing.T) {
	upstreamOps := &fakeUpstream{}
	upstream, err := provider.New(upstreamOps)
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	wrapper := &Ops{Base: wrapping.NewBase(upstream, false), dup: func(pid, remoteFD int32) (int32, error) {
		// Same-process stand-in: real pidfd_getfd would return a new
		// local descriptor for remoteFD; here we just prove the
		// duplicator is consulted and its result lands in the blob.
		return remoteFD + 1000, nil
	}}

	blob := make([]byte, 12)
	binary.LittleEndian.PutUint32(blob[0:4], 7) // remote fd = 7
	binary.LittleEndian.PutUint64(blob[4:12], 4096)

	ptr, err := wrapper.OpenIPCHandleFromPID(42, blob)
	if err != nil {
		t.Fatalf("OpenIPCHandleFromPID: %v", err)
	}
	if ptr != 0xABC {
		t.Fatalf("ptr = %x, want 0xABC", ptr)
	}

	gotFD := binary.LittleEndian.Uint32(upstreamOps.lastOpenedBlob[0:4])
	if gotFD != 1007 {
		t.Fatalf("translated fd = %d, want 1007", gotFD)
	}
	// spec.md §4.2: the translation rewrites the blob in place before
	// forwarding to the upstream open.
	if binary.LittleEndian.Uint32(blob[0:4]) != 1007 {
		t.Fatalf("blob not rewritten in place: got fd %d, want 1007", binary.LittleEndian.Uint32(blob[0:4]))
	}
}

func TestOpenIPCHandleWithoutPIDIsInvalidArgument(t *testing.T) {
	upstream, err := provider.New(&fakeUpstream{})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	wrapper := &Ops{Base: wrapping.NewBase(upstream, false), dup: translateViaPidfd}

	if _, err := wrapper.OpenIPCHandle(make([]byte, 12)); provider.Code(err) != provider.InvalidArgument {
		t.Fatalf("OpenIPCHandle = %v, want InvalidArgument", err)
	}
}
