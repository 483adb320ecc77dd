// Package fixedbuffer implements a memory provider that carves
// allocations out of one caller-supplied, fixed-size buffer, the same
// "free list of fixed-size objects backed by one arena" shape as
// runtime/mfixalloc.go, generalized from one fixed object size to
// arbitrary request sizes via a first-fit free list.
package fixedbuffer

import (
	"sync"
	"unsafe"

	"github.com/umf-go/umf/provider"
)

// freeBlock is a node in the address-ordered free list, mirroring
// runtime/mfixalloc.go's mlink but carrying a size since this
// provider serves variable-size requests, not one fixed object size.
type freeBlock struct {
	offset uintptr
	size   uintptr
	next   *freeBlock
}

// ops serves allocations from one fixed-size arena. Unlike
// runtime/mfixalloc.go's fixalloc (which lazily grabs its first chunk
// on the first alloc call), this provider's free list head is built
// eagerly in New, closing the allocation-before-initialization
// ordering bug spec.md §9 calls out: a free list walked before its
// head exists is a nil-pointer bug waiting to happen.
type ops struct {
	buf  []byte
	base uintptr

	mu   sync.Mutex
	free *freeBlock // address-ordered, coalesced on Free
}

// New allocates an arena of size bytes and returns a provider that
// serves allocations from it.
func New(size uintptr) (*provider.Provider, error) {
	if size == 0 {
		return nil, provider.InvalidArgument.Err()
	}
	buf := make([]byte, size)
	o := &ops{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		free: &freeBlock{offset: 0, size: size},
	}
	return provider.New(o)
}

func (o *ops) Name() string { return "fixed_buffer" }

func (o *ops) Alloc(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return 0, provider.InvalidArgument.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var prev *freeBlock
	for b := o.free; b != nil; b = b.next {
		alignedOffset := b.offset
		if alignment > 0 {
			alignedOffset = (o.base + b.offset + alignment - 1) &^ (alignment - 1)
			alignedOffset -= o.base
		}
		pad := alignedOffset - b.offset
		if b.size < pad+size {
			prev = b
			continue
		}

		// Shrink/replace b to describe only what remains free after
		// carving out [alignedOffset, alignedOffset+size).
		tailOffset := alignedOffset + size
		tailSize := b.offset + b.size - tailOffset
		next := b.next

		var replacement *freeBlock
		if pad > 0 {
			replacement = &freeBlock{offset: b.offset, size: pad}
		}
		if tailSize > 0 {
			tail := &freeBlock{offset: tailOffset, size: tailSize, next: next}
			if replacement != nil {
				replacement.next = tail
			} else {
				replacement = tail
			}
		} else if replacement != nil {
			replacement.next = next
		}

		if prev == nil {
			o.free = replacement
		} else {
			prev.next = replacement
		}
		return o.base + alignedOffset, nil
	}
	return 0, provider.OutOfHostMemory.Err()
}

func (o *ops) Free(ptr, size uintptr) error {
	if ptr < o.base || ptr+size > o.base+uintptr(len(o.buf)) {
		return provider.InvalidArgument.Err()
	}
	offset := ptr - o.base

	o.mu.Lock()
	defer o.mu.Unlock()

	// Insert in address order and coalesce with neighbors, keeping
	// the free list from fragmenting into many same-size holes across
	// the scenario 1 pattern of alloc-128/free-1/alloc-1.
	var prev *freeBlock
	cur := o.free
	for cur != nil && cur.offset < offset {
		prev = cur
		cur = cur.next
	}

	nb := &freeBlock{offset: offset, size: size, next: cur}
	if prev == nil {
		o.free = nb
	} else {
		prev.next = nb
	}

	if cur != nil && nb.offset+nb.size == cur.offset {
		nb.size += cur.size
		nb.next = cur.next
	}
	if prev != nil && prev.offset+prev.size == nb.offset {
		prev.size += nb.size
		prev.next = nb.next
	}
	return nil
}

func (o *ops) Close() {
	o.mu.Lock()
	o.free = nil
	o.buf = nil
	o.mu.Unlock()
}

func (o *ops) RecommendedPageSize(size uintptr) uintptr { return size }
func (o *ops) MinPageSize(ptr uintptr) uintptr          { return 1 }

func (o *ops) String() string { return "fixed_buffer" }
