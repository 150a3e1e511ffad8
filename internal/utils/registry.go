package utils

import (
	"cmp"
	"slices"
	"sync"
)

// Registry maps names to algorithm implementations. It is safe for concurrent use.
type Registry[K cmp.Ordered, V any] struct {
	mut     sync.RWMutex
	entries map[K]V
}

// NewRegistry returns an empty Registry.
func NewRegistry[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]V)}
}

// Set adds value under name. It errors if name is already in use, entries are never replaced.
func (self *Registry[K, V]) Set(name K, value V) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	if _, conflict := self.entries[name]; conflict {
		return newError("name %v already in use", name)
	}
	self.entries[name] = value
	return nil
}

// Get returns the value registered under name.
func (self *Registry[K, V]) Get(name K) (V, bool) {
	self.mut.RLock()
	defer self.mut.RUnlock()
	rv, ok := self.entries[name]
	return rv, ok
}

// Find returns the first value, in name order, for which match returns true.
func (self *Registry[K, V]) Find(match func(V) bool) (V, bool) {
	self.mut.RLock()
	defer self.mut.RUnlock()
	for _, name := range self.names() {
		if v := self.entries[name]; match(v) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Names returns the sorted registered names.
func (self *Registry[K, V]) Names() []K {
	self.mut.RLock()
	defer self.mut.RUnlock()
	return self.names()
}

func (self *Registry[K, V]) names() []K {
	rv := make([]K, 0, len(self.entries))
	for name := range self.entries {
		rv = append(rv, name)
	}
	slices.Sort(rv)
	return rv
}
