// Package umf is the top-level facade spec.md §6 describes as the
// "Generic" API group: operations that resolve a bare pointer to its
// owning pool via the tracking table, so callers don't have to thread
// a *pool.Pool through every call site the way pool.Pool's own methods
// require.
package umf

import (
	"github.com/umf-go/umf/ipc"
	"github.com/umf-go/umf/pool"
	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/tracking"
)

// sentinelPtr is the value every pool's malloc(0) returns (see
// pool/disjoint's sentinelMalloc0); it is never inserted into the
// tracking table; this facade special-cases Free on it instead.
const sentinelPtr = ^uintptr(0)

// Malloc allocates size bytes from pl and registers the allocation in
// the process-wide tracking table, so a later generic Free/
// GetPoolByPtr/GetIPCHandle can resolve it back to pl and pl's
// provider without the caller repeating that association.
func Malloc(pl *pool.Pool, size uintptr) (uintptr, error) {
	ptr, err := pl.Malloc(size)
	if err != nil {
		return 0, err
	}
	if ptr == sentinelPtr {
		return ptr, nil
	}
	usable, _ := pl.MallocUsableSize(ptr)
	if err := tracking.Global().Insert(ptr, usable, pl.Provider(), pl); err != nil {
		_ = pl.Free(ptr)
		return 0, err
	}
	return ptr, nil
}

// Free resolves ptr via the tracking table and releases it through its
// owning pool, per spec.md §6's generic `free(ptr)`.
func Free(ptr uintptr) error {
	if ptr == sentinelPtr {
		return nil
	}
	entry, ok := tracking.Global().Find(ptr)
	if !ok {
		return provider.InvalidArgument.Err()
	}
	pl, ok := entry.Pool.(*pool.Pool)
	if !ok {
		return provider.InvalidArgument.Err()
	}
	if err := pl.Free(entry.Base); err != nil {
		return err
	}
	return tracking.Global().Remove(entry.Base)
}

// Realloc resizes a tracking-registered allocation, migrating its
// tracking-table entry to the new address. pool.Pool.Realloc on its
// own cannot do this: it frees the old base and mallocs a new one
// through the pool's Ops directly, with no knowledge of the tracking
// table, so a pointer obtained via Malloc (and therefore tracking-
// registered) would be left with a stale entry pointing at memory the
// provider may have already reissued. Callers that registered ptr via
// Malloc must resize it through this function, not pl.Realloc.
func Realloc(pl *pool.Pool, ptr, newSize uintptr) (uintptr, error) {
	if ptr == 0 || ptr == sentinelPtr {
		return Malloc(pl, newSize)
	}

	entry, ok := tracking.Global().Find(ptr)
	if !ok {
		return 0, provider.InvalidArgument.Err()
	}

	if newSize == 0 {
		if err := pl.Free(entry.Base); err != nil {
			return 0, err
		}
		return 0, tracking.Global().Remove(entry.Base)
	}

	newPtr, err := pl.Realloc(entry.Base, newSize)
	if err != nil {
		return 0, err
	}
	if err := tracking.Global().Remove(entry.Base); err != nil {
		return 0, err
	}
	usable, _ := pl.MallocUsableSize(newPtr)
	if err := tracking.Global().Insert(newPtr, usable, pl.Provider(), pl); err != nil {
		return 0, err
	}
	return newPtr, nil
}

// GetPoolByPtr resolves ptr to the pool that allocated it.
func GetPoolByPtr(ptr uintptr) (*pool.Pool, bool) {
	entry, ok := tracking.Global().Find(ptr)
	if !ok {
		return nil, false
	}
	pl, ok := entry.Pool.(*pool.Pool)
	return pl, ok
}

// GetIPCHandle exports ptr as an IPC blob. See package ipc.
func GetIPCHandle(ptr uintptr) ([]byte, error) { return ipc.GetIPCHandle(ptr) }

// PutIPCHandle releases a blob previously returned by GetIPCHandle.
func PutIPCHandle(blob []byte) error { return ipc.PutIPCHandle(blob) }

// OpenIPCHandle opens blob against pl, returning a pointer to the same
// underlying memory the producer's GetIPCHandle exported.
func OpenIPCHandle(pl *pool.Pool, blob []byte) (uintptr, error) { return ipc.OpenIPCHandle(pl, blob) }

// CloseIPCHandle releases a pointer obtained from OpenIPCHandle.
func CloseIPCHandle(ptr uintptr) error { return ipc.CloseIPCHandle(ptr) }
