package trust

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Lists holds the untrusted lists in their original wire format.
type Lists struct {
	Certs   []byte    `cbor:"1,keyasint"`
	OCSP    []byte    `cbor:"2,keyasint"`
	SavedAt time.Time `cbor:"3,keyasint"`
}

// Check returns an error if the Lists are incomplete.
func (self Lists) Check() error {
	if 0 == len(self.Certs) {
		return newError(ErrMalformed, "missing certificate list")
	}
	if 0 == len(self.OCSP) {
		return newError(ErrMalformed, "missing OCSP list")
	}
	return nil
}

// Equal returns true if self and other hold the same wire lists.
func (self Lists) Equal(other Lists) bool {
	return bytes.Equal(self.Certs, other.Certs) && bytes.Equal(self.OCSP, other.OCSP)
}

// ListStore persists the untrusted lists across process restarts.
type ListStore interface {
	// LoadLists returns the persisted Lists. The bool flag is false if no Lists were persisted.
	LoadLists(ctx context.Context) (Lists, bool, error)

	// SaveLists persists lists, replacing any previously persisted Lists.
	SaveLists(ctx context.Context, lists Lists) error

	// InvalidateLists removes the persisted Lists.
	InvalidateLists(ctx context.Context) error
}

// MemListStore is an in memory ListStore.
type MemListStore struct {
	mut   sync.Mutex
	lists *Lists
}

// NewMemListStore returns an empty MemListStore.
func NewMemListStore() *MemListStore {
	return &MemListStore{}
}

func (self *MemListStore) LoadLists(_ context.Context) (Lists, bool, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil == self.lists {
		return Lists{}, false, nil
	}
	return *self.lists, true, nil
}

func (self *MemListStore) SaveLists(_ context.Context, lists Lists) error {
	err := lists.Check()
	if nil != err {
		return wrapError(ErrStorage, err, "invalid lists")
	}

	self.mut.Lock()
	defer self.mut.Unlock()

	lists.Certs = bytes.Clone(lists.Certs)
	lists.OCSP = bytes.Clone(lists.OCSP)
	self.lists = &lists
	return nil
}

func (self *MemListStore) InvalidateLists(_ context.Context) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	self.lists = nil
	return nil
}

var _ ListStore = &MemListStore{}
