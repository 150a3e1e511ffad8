// Package session keeps short lived server side state indexed by self expiring keys.
//
// The mock gateway uses it to track the pseudonyms it hands out to channel clients.
package session

// Store maps keys to values, entries disappear once their key is no longer valid.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Pop(key K) (V, bool)
	Set(key K, data V) error
	Save(data V) (K, error)
	Len() int
}

// KeyFactory generates keys & tells whether a key is still valid.
type KeyFactory[K comparable] interface {
	New() K
	Check(key K) error
}
