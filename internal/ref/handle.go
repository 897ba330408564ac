// Package ref provides a lifetime-tracked, non-owning reference.
//
// A Handle is created by the owner of a value and handed out to components
// that must not extend the value's lifetime. When the owner tears the value
// down it calls Release; every holder observes the release on its next Get.
package ref

import "sync"

// Handle is a non-owning reference to a value of type T.
// The zero value and a nil *Handle both behave as released.
type Handle[T any] struct {
	mu   sync.RWMutex
	val  T
	live bool
}

// New returns a live handle to v.
func New[T any](v T) *Handle[T] {
	return &Handle[T]{val: v, live: true}
}

// Get returns the referenced value and whether it is still alive.
func (h *Handle[T]) Get() (T, bool) {
	var zero T
	if h == nil {
		return zero, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.live {
		return zero, false
	}
	return h.val, true
}

// Alive reports whether the handle has not been released.
func (h *Handle[T]) Alive() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Release drops the reference. Subsequent Get calls report not alive.
// Release is idempotent.
func (h *Handle[T]) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	var zero T
	h.val = zero
	h.live = false
	h.mu.Unlock()
}
