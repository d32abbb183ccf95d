// Package formstate tracks whether an edited value differs from the value it was loaded (or last saved) with.
package formstate

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Option configures a Tracker.
type Option[T any] func(*Tracker[T])

// WithUnloadWarning keeps the tracker registered under key in reg for as long as it is dirty.
func WithUnloadWarning[T any](reg *UnsavedChanges, key string) Option[T] {
	return func(t *Tracker[T]) {
		t.registry = reg
		t.key = key
	}
}

// WithOnChange calls fn with the dirty state every time it flips.
func WithOnChange[T any](fn func(dirty bool)) Option[T] {
	return func(t *Tracker[T]) { t.onChange = fn }
}

// Tracker holds the current value of a form next to its original value.
// It is safe for concurrent use.
type Tracker[T any] struct {
	mu       sync.RWMutex
	current  T
	original T
	dirty    bool

	registry *UnsavedChanges
	key      string
	onChange func(dirty bool)
}

// New returns a clean tracker holding initial.
func New[T any](initial T, opts ...Option[T]) *Tracker[T] {
	t := &Tracker[T]{current: initial, original: initial}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resume returns a tracker for a value that was already edited away from original.
func Resume[T any](original, current T, opts ...Option[T]) *Tracker[T] {
	t := New(original, opts...)
	t.SetValue(current)
	return t
}

func (t *Tracker[T]) Value() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tracker[T]) Original() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.original
}

func (t *Tracker[T]) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// SetValue replaces the current value.
func (t *Tracker[T]) SetValue(v T) {
	t.mu.Lock()
	t.current = v
	dirty, changed := t.refresh()
	t.mu.Unlock()
	t.notify(dirty, changed)
}

// Reset discards the edits: the current value goes back to the original.
func (t *Tracker[T]) Reset() {
	t.mu.Lock()
	t.current = t.original
	dirty, changed := t.refresh()
	t.mu.Unlock()
	t.notify(dirty, changed)
}

// MarkAsSaved makes the current value the new original.
func (t *Tracker[T]) MarkAsSaved() {
	t.mu.Lock()
	t.original = t.current
	dirty, changed := t.refresh()
	t.mu.Unlock()
	t.notify(dirty, changed)
}

// refresh recomputes the dirty flag and reports whether it flipped. Callers hold mu.
func (t *Tracker[T]) refresh() (dirty, changed bool) {
	dirty = !Equal(t.current, t.original)
	changed = dirty != t.dirty
	t.dirty = dirty
	if changed && t.registry != nil {
		if dirty {
			t.registry.add(t.key)
		} else {
			t.registry.Remove(t.key)
		}
	}
	return dirty, changed
}

func (t *Tracker[T]) notify(dirty, changed bool) {
	if !changed {
		return
	}
	if t.onChange != nil {
		t.onChange(dirty)
	}
}

// Equal compares a and b by their JSON serialization.
// Values that cannot be serialized are never equal.
func Equal(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
