// Package pidfd implements the cross-process FD provider spec.md
// §4.2 describes: an upstream-wrapping provider that translates the
// leading file descriptor in an IPC blob from the producer's
// descriptor table into one valid in this (consumer) process, via
// Linux's pidfd_open/pidfd_getfd, then forwards the rewritten blob to
// the upstream provider's OpenIPCHandle.
package pidfd

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/provider/wrapping"
)

// fdDuplicator abstracts the OS-level descriptor-duplication call so
// tests can exercise the blob-rewriting logic without requiring the
// CAP_SYS_PTRACE privilege real pidfd_getfd calls need. translate
// duplicates remoteFD from the process identified by pid into a
// local descriptor.
type fdDuplicator func(pid int32, remoteFD int32) (localFD int32, err error)

func translateViaPidfd(pid int32, remoteFD int32) (int32, error) {
	pidfd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(pidfd)

	local, err := unix.PidfdGetfd(pidfd, int(remoteFD), 0)
	if err != nil {
		return 0, err
	}
	return int32(local), nil
}

// Ops wraps an upstream provider whose IPC blobs begin with a
// 4-byte little-endian file descriptor (providers/devicefd is the
// reference shape).
type Ops struct {
	wrapping.Base
	dup fdDuplicator
}

// New wraps upstream with pidfd-based FD translation. ownUpstream
// mirrors spec.md §4.2: when true, Close destroys upstream too.
func New(upstream *provider.Provider, ownUpstream bool) (*provider.Provider, error) {
	o := &Ops{Base: wrapping.NewBase(upstream, ownUpstream), dup: translateViaPidfd}
	return provider.New(o)
}

func (o *Ops) Name() string { return "pidfd_wrapper(" + o.Upstream.Name() + ")" }

func (o *Ops) IPCHandleSize() int {
	ic, ok := o.Upstream.IPC()
	if !ok {
		return 0
	}
	return ic.IPCHandleSize()
}

func (o *Ops) GetIPCHandle(ptr, size uintptr, out []byte) error {
	ic, ok := o.Upstream.IPC()
	if !ok {
		return provider.NotSupported.Err()
	}
	return ic.GetIPCHandle(ptr, size, out)
}

func (o *Ops) PutIPCHandle(blob []byte) error {
	ic, ok := o.Upstream.IPC()
	if !ok {
		return provider.NotSupported.Err()
	}
	return ic.PutIPCHandle(blob)
}

// OpenIPCHandle is only reachable when the IPC engine has no producer
// pid to give us (e.g. a direct, non-UMF caller); without one there is
// nothing to translate, so this provider always requires the
// PIDAwareOpener path below.
func (o *Ops) OpenIPCHandle(blob []byte) (uintptr, error) {
	return 0, provider.InvalidArgument.Err()
}

// OpenIPCHandleFromPID rewrites blob's leading fd from the producer's
// descriptor table into one valid here, then forwards to the
// upstream provider's OpenIPCHandle with the rewritten blob.
func (o *Ops) OpenIPCHandleFromPID(producerPID int32, blob []byte) (uintptr, error) {
	ic, ok := o.Upstream.IPC()
	if !ok {
		return 0, provider.NotSupported.Err()
	}
	if len(blob) < 4 {
		return 0, provider.InvalidArgument.Err()
	}

	remoteFD := int32(binary.LittleEndian.Uint32(blob[0:4]))
	localFD, err := o.dup(producerPID, remoteFD)
	if err != nil {
		return 0, provider.InvalidArgument.ErrNative(err.Error())
	}

	// Rewritten in place, per spec: the blob ipc.OpenIPCHandle passes
	// is its own copy, not the caller's wire bytes, so clobbering the
	// leading fd here is safe and avoids an extra allocation.
	binary.LittleEndian.PutUint32(blob[0:4], uint32(localFD))

	return ic.OpenIPCHandle(blob)
}

func (o *Ops) CloseIPCHandle(ptr, size uintptr) error {
	ic, ok := o.Upstream.IPC()
	if !ok {
		return provider.NotSupported.Err()
	}
	return ic.CloseIPCHandle(ptr, size)
}
