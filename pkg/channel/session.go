package channel

import (
	"context"
	"sync"

	"code.vaulink.org/golang/internal/observability"
)

// DefaultAlias is the alias of a client that has no gateway session.
const DefaultAlias = "0"

// AliasStore persists the channel alias across process restarts.
type AliasStore interface {
	// LoadAlias returns the persisted alias, or "" if none was persisted.
	LoadAlias(ctx context.Context) (string, error)

	// SaveAlias persists alias.
	SaveAlias(ctx context.Context, alias string) error
}

// MemAliasStore is an in memory AliasStore.
type MemAliasStore struct {
	mut   sync.Mutex
	alias string
}

func (self *MemAliasStore) LoadAlias(_ context.Context) (string, error) {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.alias, nil
}

func (self *MemAliasStore) SaveAlias(_ context.Context, alias string) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.alias = alias
	return nil
}

var _ AliasStore = &MemAliasStore{}

// Session owns the alias of a channel client.
type Session struct {
	mut    sync.Mutex
	store  AliasStore
	alias  string
	loaded bool
}

// NewSession returns a Session persisted in store, a MemAliasStore is used if store is nil.
func NewSession(store AliasStore) *Session {
	if nil == store {
		store = &MemAliasStore{}
	}
	return &Session{store: store}
}

// Alias returns the current alias, DefaultAlias if the client has no gateway session.
func (self *Session) Alias(ctx context.Context) (string, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if !self.loaded {
		alias, err := self.store.LoadAlias(ctx)
		if nil != err {
			return DefaultAlias, wrapError(ErrTransport, err, "failed loading alias")
		}
		if nil != CheckAlias(alias) {
			alias = DefaultAlias
		}
		self.alias = alias
		self.loaded = true
	}

	return self.alias, nil
}

// Update replaces the current alias.
func (self *Session) Update(ctx context.Context, alias string) error {
	err := CheckAlias(alias)
	if nil != err {
		return err
	}
	return self.set(ctx, alias)
}

// Reset sets the current alias back to DefaultAlias.
func (self *Session) Reset(ctx context.Context) error {
	return self.set(ctx, DefaultAlias)
}

func (self *Session) set(ctx context.Context, alias string) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	self.alias = alias
	self.loaded = true
	err := self.store.SaveAlias(ctx, alias)
	if nil != err {
		observability.GetObservability(ctx).Log().Warn("failed persisting channel alias", "error", err)
		return wrapError(ErrTransport, err, "failed saving alias")
	}
	return nil
}
