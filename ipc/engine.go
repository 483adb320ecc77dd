package ipc

import (
	"os"
	"sync"

	"github.com/umf-go/umf/internal/logging"
	"github.com/umf-go/umf/pool"
	"github.com/umf-go/umf/provider"
	"github.com/umf-go/umf/tracking"
)

// openEntry is the consumer-side open-handle record: spec.md §4.1's
// "(opaque_blob_fingerprint) → {mapped_base, refcount, owning_pool,
// producer_pid}". The fingerprint here is the blob's own bytes — exact
// equality, not a lossy hash, which is what spec.md's wording demands
// when two producers could plausibly mint colliding short hashes.
type openEntry struct {
	mappedBase  uintptr
	effective   uintptr
	size        uintptr
	refcount    int
	pool        *pool.Pool
	producerPID int32
}

var (
	consumerMu  sync.Mutex
	byBlob      = map[string]*openEntry{}
	byEffective = map[uintptr]*openEntry{}

	producerMu      sync.Mutex
	producerExports = map[string]*provider.Provider{}
)

// peekProducerExport looks up blob's producer without consuming the
// export record the way PutIPCHandle does, so OpenIPCHandle's
// compatibility check can inspect it without disturbing PutIPCHandle's
// own bookkeeping.
func peekProducerExport(blob []byte) (*provider.Provider, bool) {
	producerMu.Lock()
	defer producerMu.Unlock()
	p, ok := producerExports[string(blob)]
	return p, ok
}

// GetIPCHandle is the producer side of spec.md §4.5: resolve ptr in
// the tracking table, ask its provider for an opaque blob, and wrap it
// with the UMF-level header.
func GetIPCHandle(ptr uintptr) ([]byte, error) {
	entry, ok := tracking.Global().Find(ptr)
	if !ok {
		return nil, provider.InvalidArgument.Err()
	}
	ipcOps, ok := entry.Provider.IPC()
	if !ok {
		return nil, provider.NotSupported.Err()
	}

	n := ipcOps.IPCHandleSize()
	blob := make([]byte, headerSize+n)
	h := header{pid: int32(os.Getpid()), baseSize: uint64(entry.Size), offset: uint64(ptr - entry.Base)}
	h.encode(blob)

	if err := ipcOps.GetIPCHandle(entry.Base, entry.Size, blob[headerSize:]); err != nil {
		return nil, err
	}

	producerMu.Lock()
	producerExports[string(blob)] = entry.Provider
	producerMu.Unlock()

	logging.Logger().Debug("ipc handle exported", "ptr", ptr, "provider", entry.Provider.Name(), "bytes", len(blob))
	return blob, nil
}

// PutIPCHandle is the producer side's release of a previously exported
// blob. spec.md §6 passes only the blob, not the pool or provider, so
// the engine recovers the provider from the export it recorded in
// GetIPCHandle.
func PutIPCHandle(blob []byte) error {
	if len(blob) < headerSize {
		return provider.InvalidArgument.Err()
	}

	producerMu.Lock()
	p, ok := producerExports[string(blob)]
	if ok {
		delete(producerExports, string(blob))
	}
	producerMu.Unlock()
	if !ok {
		return provider.InvalidArgument.Err()
	}

	ipcOps, ok := p.IPC()
	if !ok {
		return provider.NotSupported.Err()
	}
	return ipcOps.PutIPCHandle(blob[headerSize:])
}

// OpenIPCHandle is the consumer side of spec.md §4.5: unwrap the
// header, verify pl's provider is wire-compatible with whatever
// produced blob, dispatch to the backend (preferring a
// provider.PIDAwareOpener when present), and return a pointer to the
// same underlying memory the producer's ptr addressed.
func OpenIPCHandle(pl *pool.Pool, blob []byte) (uintptr, error) {
	if len(blob) < headerSize {
		return 0, provider.InvalidArgument.Err()
	}
	h := decodeHeader(blob)
	// A private copy: a PIDAwareOpener may rewrite it in place, and the
	// caller's bytes must stay as exported (PutIPCHandle looks them up).
	providerBlob := append([]byte(nil), blob[headerSize:]...)

	p := pl.Provider()
	ipcOps, ok := p.IPC()
	if !ok {
		return 0, provider.NotSupported.Err()
	}
	// Compatibility check (spec.md §6/§7): same get_name() and same
	// get_ipc_handle_size() as the producer's provider. True
	// cross-process transmission of get_name() is out of scope (see
	// spec.md §1's named transport exclusion), so the name half of the
	// check only fires when the producer's export is still visible in
	// this process (producerExports) — the common in-process/same-
	// machine case this test suite exercises. The length check against
	// the blob itself is the check that still holds across a genuine
	// process boundary, where only the bytes on the wire survive.
	if prod, ok := peekProducerExport(blob); ok && prod.Name() != p.Name() {
		return 0, provider.InvalidArgument.Err()
	}
	if len(providerBlob) != ipcOps.IPCHandleSize() {
		return 0, provider.InvalidArgument.Err()
	}

	key := string(blob)
	consumerMu.Lock()
	if e, found := byBlob[key]; found {
		e.refcount++
		consumerMu.Unlock()
		return e.effective, nil
	}
	consumerMu.Unlock()

	var mappedBase uintptr
	var err error
	if pa, ok := p.PIDAwareOpen(); ok {
		mappedBase, err = pa.OpenIPCHandleFromPID(h.pid, providerBlob)
	} else {
		mappedBase, err = ipcOps.OpenIPCHandle(providerBlob)
	}
	if err != nil {
		return 0, err
	}

	e := &openEntry{
		mappedBase:  mappedBase,
		effective:   mappedBase + uintptr(h.offset),
		size:        uintptr(h.baseSize),
		refcount:    1,
		pool:        pl,
		producerPID: h.pid,
	}
	consumerMu.Lock()
	byBlob[key] = e
	byEffective[e.effective] = e
	consumerMu.Unlock()

	logging.Logger().Debug("ipc handle opened", "ptr", e.effective, "provider", p.Name(), "producer_pid", h.pid)
	return e.effective, nil
}

// CloseIPCHandle is the consumer side's release of a pointer obtained
// from OpenIPCHandle. The backing mapping is only actually closed once
// its refcount drops to zero, matching spec.md §4.1's refcounted
// open-handle record.
func CloseIPCHandle(ptr uintptr) error {
	consumerMu.Lock()
	e, ok := byEffective[ptr]
	if !ok {
		consumerMu.Unlock()
		return provider.InvalidArgument.Err()
	}
	e.refcount--
	last := e.refcount == 0
	if last {
		delete(byEffective, ptr)
		for k, v := range byBlob {
			if v == e {
				delete(byBlob, k)
				break
			}
		}
	}
	consumerMu.Unlock()

	if !last {
		return nil
	}

	ipcOps, ok := e.pool.Provider().IPC()
	if !ok {
		return provider.NotSupported.Err()
	}
	return ipcOps.CloseIPCHandle(e.mappedBase, e.size)
}
