package session

import (
	"sync"
)

// numSlot is the number of Clock ticks a key stays valid.
const numSlot = 16

type TimedKey interface {
	comparable
	Timed
}

type slot[K TimedKey, V any] struct {
	mut   sync.RWMutex
	t     int64
	store map[K]V
}

// MemStore is an in memory Store whose entries expire with their keys.
//
// Entries are spread over numSlot slots by key tick, a slot is recycled when a key of a newer tick lands in it.
type MemStore[K TimedKey, V any] struct {
	Keys  KeyFactory[K]
	slots [numSlot]slot[K, V]
}

// NewMemStore returns a MemStore whose keys are generated & checked by kf. It errors if kf is nil.
func NewMemStore[K TimedKey, V any](kf KeyFactory[K]) (*MemStore[K, V], error) {
	if nil == kf {
		return nil, newError("nil KeyFactory")
	}

	return &MemStore[K, V]{Keys: kf}, nil
}

// Get returns the value indexed by key & true if key is valid and present.
func (self *MemStore[K, V]) Get(key K) (V, bool) {
	var v V
	if nil != self.Keys.Check(key) {
		return v, false
	}

	ts := key.T()
	slot := self.slot(ts)
	slot.mut.RLock()
	defer slot.mut.RUnlock()
	if ts != slot.t {
		return v, false
	}
	v, found := slot.store[key]

	return v, found
}

// Pop removes key & returns its value, the bool is true if key was present.
func (self *MemStore[K, V]) Pop(key K) (V, bool) {
	var v V
	if nil != self.Keys.Check(key) {
		return v, false
	}

	ts := key.T()
	slot := self.slot(ts)
	slot.mut.Lock()
	defer slot.mut.Unlock()
	if ts != slot.t {
		return v, false
	}
	v, found := slot.store[key]
	delete(slot.store, key)

	return v, found
}

// Set registers data under key. It errors if key is not valid.
func (self *MemStore[K, V]) Set(key K, data V) error {
	err := self.Keys.Check(key)
	if nil != err {
		return wrapError(err, "invalid key")
	}
	self.put(key, data)

	return nil
}

// Save registers data under a fresh key & returns it.
func (self *MemStore[K, V]) Save(data V) (K, error) {
	key := self.Keys.New()
	self.put(key, data)

	return key, nil
}

// Len returns the number of entries held in slots that are not yet recycled.
// Expired entries are counted until their slot is reused.
func (self *MemStore[K, V]) Len() int {
	var rv int
	for i := range self.slots {
		slot := &self.slots[i]
		slot.mut.RLock()
		rv += len(slot.store)
		slot.mut.RUnlock()
	}
	return rv
}

func (self *MemStore[K, V]) slot(ts int64) *slot[K, V] {
	return &self.slots[ts%numSlot]
}

func (self *MemStore[K, V]) put(key K, data V) {
	ts := key.T()
	slot := self.slot(ts)
	slot.mut.Lock()
	defer slot.mut.Unlock()

	if ts != slot.t || nil == slot.store {
		slot.t = ts
		slot.store = make(map[K]V)
	}
	slot.store[key] = data
}

var _ Store[Pseudonym, string] = &MemStore[Pseudonym, string]{}
