//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package console

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/obinnaokechukwu/ske/internal/layout"
)

// Source resolves partitions to their configuration records. The loaded
// kernel library is the only production Source.
type Source interface {
	PartitionConfig(p unsafe.Pointer) unsafe.Pointer
	Layout() layout.Layout
}

var (
	// ErrEmpty means the callback fired before any kernel was published.
	ErrEmpty = errors.New("console: no kernel library published")

	// ErrPoisoned means a publisher panicked while holding the registry.
	ErrPoisoned = errors.New("console: registry poisoned")
)

// The registry is a single process-wide slot: the native console callback
// carries no user-data pointer, so the active library has to be reachable
// from a global. Only one kernel can be live per process.
var (
	mu       sync.RWMutex
	current  Source
	poisoned bool
)

// Publish makes src the active kernel, replacing any previous one. The slot
// is never cleared.
//
// Thread-safe.
func Publish(src Source) {
	update(func(Source) Source { return src })
}

// update replaces the slot under the write lock. A panic in fn leaves the
// registry poisoned.
func update(fn func(prev Source) Source) {
	mu.Lock()
	defer mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			poisoned = true
			panic(r)
		}
	}()
	current = fn(current)
}

// Current returns the active kernel.
//
// Thread-safe.
func Current() (Source, error) {
	mu.RLock()
	defer mu.RUnlock()
	if poisoned {
		return nil, ErrPoisoned
	}
	if current == nil {
		return nil, ErrEmpty
	}
	return current, nil
}
