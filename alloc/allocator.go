// Package alloc implements the memory-limited allocator described in
// spec §4.1: a byte-accounting wrapper consulted by every heap allocation
// the engine performs (owned strings, tables, arrays, closures, userdata).
//
// The allocator does not itself manage raw memory — Go's runtime and GC do
// that — it only accounts bytes-in-use against a configured cap so the VM
// can enforce spec's MemoryLimitExceeded invariant deterministically.
package alloc

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Allocator tracks bytes currently charged against a configured limit.
// Safe for concurrent reads of Used/Limit from a diagnostics goroutine
// while the owning VM runs single-threaded, per spec §4.1's "a host may
// read it from another thread for diagnostics" note.
type Allocator struct {
	limit int64
	used  int64
}

// New constructs an Allocator capped at limitBytes. A limit of 0 means
// unlimited (no cap is enforced), matching the teacher's convention for
// "0 means unbounded" sentinel config fields.
func New(limitBytes int64) *Allocator {
	return &Allocator{limit: limitBytes}
}

// Limit returns the configured cap in bytes (0 = unlimited).
func (a *Allocator) Limit() int64 { return a.limit }

// Used returns the current bytes-in-use.
func (a *Allocator) Used() int64 { return atomic.LoadInt64(&a.used) }

// Alloc charges n bytes against the cap. It succeeds only if
// used+n <= limit (or the allocator is unlimited); on failure the counter
// is left untouched and a MemoryLimitExceeded-flavored error is returned.
func (a *Allocator) Alloc(n int) error {
	if n < 0 {
		return fmt.Errorf("alloc: negative size %d", n)
	}
	if n == 0 {
		return nil
	}
	delta := int64(n)
	for {
		cur := atomic.LoadInt64(&a.used)
		next := cur + delta
		if a.limit > 0 && next > a.limit {
			return &LimitExceededError{Requested: int64(n), Used: cur, Limit: a.limit}
		}
		if atomic.CompareAndSwapInt64(&a.used, cur, next) {
			return nil
		}
	}
}

// Free releases n bytes back to the budget. Free always succeeds; the
// counter never underflows as long as every Free is paired with a prior
// successful Alloc of the same length (spec §4.1 invariant).
func (a *Allocator) Free(n int) {
	if n <= 0 {
		return
	}
	delta := int64(n)
	for {
		cur := atomic.LoadInt64(&a.used)
		next := cur - delta
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&a.used, cur, next) {
			return
		}
	}
}

// TryResize attempts to grow (or shrink) a previous allocation of oldSize
// bytes to newSize bytes in place. Growing is pre-checked the same way
// Alloc is; on failure the caller should fall back to Alloc(newSize) +
// copy + Free(oldSize) per spec §4.1 ("callers fall back to alloc+copy").
func (a *Allocator) TryResize(oldSize, newSize int) error {
	if newSize <= oldSize {
		a.Free(oldSize - newSize)
		return nil
	}
	return a.Alloc(newSize - oldSize)
}

// LimitExceededError is returned by Alloc/TryResize when the cap would be
// exceeded. It renders human-readable byte counts via go-humanize so host
// logs read "cannot allocate 1.0 kB: would exceed limit of 1.0 kB (960 B
// in use)" rather than raw integers.
type LimitExceededError struct {
	Requested int64
	Used      int64
	Limit     int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf(
		"cannot allocate %s: would exceed limit of %s (%s in use)",
		humanize.Bytes(uint64(e.Requested)),
		humanize.Bytes(uint64(e.Limit)),
		humanize.Bytes(uint64(e.Used)),
	)
}
