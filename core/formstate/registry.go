package formstate

import (
	"sort"
	"strings"
	"sync"
)

// UnsavedChanges records which forms hold edits that were not saved yet.
type UnsavedChanges struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewUnsavedChanges() *UnsavedChanges {
	return &UnsavedChanges{keys: make(map[string]struct{})}
}

func (u *UnsavedChanges) add(key string) {
	u.mu.Lock()
	u.keys[key] = struct{}{}
	u.mu.Unlock()
}

// Remove forgets key.
func (u *UnsavedChanges) Remove(key string) {
	u.mu.Lock()
	delete(u.keys, key)
	u.mu.Unlock()
}

// HasUnsaved reports whether any form is dirty.
func (u *UnsavedChanges) HasUnsaved() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.keys) > 0
}

// Keys returns the sorted keys of the dirty forms.
func (u *UnsavedChanges) Keys() []string {
	u.mu.Lock()
	keys := make([]string, 0, len(u.keys))
	for k := range u.keys {
		keys = append(keys, k)
	}
	u.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// ClearAll forgets every dirty form, e.g. on logout.
func (u *UnsavedChanges) ClearAll() {
	u.mu.Lock()
	u.keys = make(map[string]struct{})
	u.mu.Unlock()
}

// ClearPrefix forgets the dirty forms whose key starts with prefix and returns how many were dropped.
func (u *UnsavedChanges) ClearPrefix(prefix string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for k := range u.keys {
		if strings.HasPrefix(k, prefix) {
			delete(u.keys, k)
			n++
		}
	}
	return n
}
