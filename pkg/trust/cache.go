package trust

import (
	"context"
	"crypto/ecdh"
	"crypto/x509"
	"sync"
	"time"

	"go.uber.org/atomic"

	"code.vaulink.org/golang/internal/fsm"
	"code.vaulink.org/golang/internal/observability"
)

// DefaultRefreshTimeout bounds the duration of a Cache refresh.
const DefaultRefreshTimeout = 30 * time.Second

// Clock returns the current time.
type Clock func() time.Time

// CacheConfig holds the collaborators of a Cache.
type CacheConfig struct {
	// Anchor is the trust anchor, it is required.
	Anchor *x509.Certificate

	// Policy selects the TrustedStore certificates.
	Policy Policy

	// MaxAge bounds the age of the revocation evidence, DefaultMaxAge is used if 0.
	MaxAge time.Duration

	// Fetcher retrieves the lists from the gateway, it is required.
	Fetcher Fetcher

	// Store persists the lists, a MemListStore is used if nil.
	Store ListStore

	// Clock is the time source, time.Now is used if nil.
	Clock Clock

	// RefreshTimeout bounds a refresh, DefaultRefreshTimeout is used if 0.
	RefreshTimeout time.Duration
}

// Check returns an error if the CacheConfig is invalid.
func (self CacheConfig) Check() error {
	if nil == self.Anchor {
		return newError(ErrAnchorNotFound, "missing Anchor")
	}
	if nil == self.Fetcher {
		return newError(Error, "missing Fetcher")
	}
	if self.MaxAge < 0 {
		return newError(Error, "invalid MaxAge %v", self.MaxAge)
	}
	if self.RefreshTimeout < 0 {
		return newError(Error, "invalid RefreshTimeout %v", self.RefreshTimeout)
	}
	return wrapError(Error, self.Policy.Check(), "invalid Policy") // nil if Check succeeded
}

type cacheState int

const (
	cacheEmpty cacheState = iota
	cacheValid
	cacheRefreshing
	cacheFailed
)

const (
	evtRefresh       = "Refresh"
	evtRefreshed     = "Refreshed"
	evtRefreshFailed = "RefreshFailed"
	evtExpire        = "Expire"
	evtReset         = "Reset"
)

// refresh is the future shared by the callers waiting for the same refresh.
type refresh struct {
	done  chan struct{}
	store *TrustedStore
	err   error
}

// CacheStats counts Cache activity.
type CacheStats struct {
	Refreshes int64 // number of refresh attempts
	Fetches   int64 // number of remote fetches
	Failures  int64 // number of failed refresh attempts
}

// Cache owns the current TrustedStore and refreshes it when it becomes stale.
//
// Concurrent callers arriving while the TrustedStore is missing or stale share a single refresh.
type Cache struct {
	cfg      CacheConfig
	mut      sync.Mutex
	state    cacheState
	store    *TrustedStore
	inflight *refresh
	lastErr  error

	refreshes atomic.Int64
	fetches   atomic.Int64
	failures  atomic.Int64
}

// NewCache returns an empty Cache.
// It errors if cfg is invalid.
func NewCache(cfg CacheConfig) (*Cache, error) {
	err := cfg.Check()
	if nil != err {
		return nil, wrapError(Error, err, "invalid CacheConfig")
	}
	if 0 == cfg.MaxAge {
		cfg.MaxAge = DefaultMaxAge
	}
	if nil == cfg.Store {
		cfg.Store = NewMemListStore()
	}
	if nil == cfg.Clock {
		cfg.Clock = time.Now
	}
	if 0 == cfg.RefreshTimeout {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}

	return &Cache{cfg: cfg}, nil
}

// cacheFSM exposes the Cache state to fsm.Update, it is used with Cache.mut held.
type cacheFSM struct {
	c *Cache
}

func (self cacheFSM) State() cacheState {
	return self.c.state
}

func (self cacheFSM) SetState(s cacheState) {
	self.c.state = s
}

// update passes evt to the Cache state machine, it is called with mut held.
func (self *Cache) update(evt fsm.Event) error {
	return fsm.Update(cacheFSM{c: self}, cacheTransitions[:], evt)
}

// ValidStore returns a TrustedStore that is not stale, refreshing it if needed.
//
// The refresh is shared by concurrent callers and is not cancelled with the ctx of the caller that started it.
// It errors if the refresh failed or if ctx is done before the refresh completes.
func (self *Cache) ValidStore(ctx context.Context) (*TrustedStore, error) {
	self.mut.Lock()
	if cacheValid == self.state {
		if !self.store.IsStale(self.cfg.Clock()) {
			store := self.store
			self.mut.Unlock()
			return store, nil
		}
		err := self.update(fsm.Event{Tag: evtExpire})
		if nil != err {
			self.mut.Unlock()
			return nil, wrapError(Error, err, "failed expiring TrustedStore")
		}
	}

	r := self.inflight
	owner := nil == r
	if owner {
		r = &refresh{done: make(chan struct{})}
		err := self.update(fsm.Event{Tag: evtRefresh, Data: r})
		if nil != err {
			self.mut.Unlock()
			return nil, wrapError(Error, err, "failed starting refresh")
		}
	}
	self.mut.Unlock()

	if owner {
		go self.runRefresh(ctx, r)
	}

	select {
	case <-r.done:
		return r.store, r.err
	case <-ctx.Done():
		return nil, wrapError(ErrRemoteFetchFailed, ctx.Err(), "cancelled while waiting for refresh")
	}
}

// runRefresh completes r. It keeps ctx values but not its cancellation, waiters may outlive the caller that started r.
func (self *Cache) runRefresh(ctx context.Context, r *refresh) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), self.cfg.RefreshTimeout)
	defer cancel()

	r.store, r.err = self.refresh(ctx)

	self.mut.Lock()
	tag := evtRefreshed
	if nil != r.err {
		tag = evtRefreshFailed
	}
	uerr := self.update(fsm.Event{Tag: tag, Data: r})
	self.mut.Unlock()
	close(r.done)

	if nil != uerr {
		// the Cache was Reset while refreshing
		observability.GetObservability(ctx).Log().Debug("discarded refresh result", "error", uerr)
	}
}

// WithValidPublicKey calls fn with the public key of a TrustedStore that is not stale.
func WithValidPublicKey[R any](ctx context.Context, cache *Cache, fn func(*ecdh.PublicKey) (R, error)) (R, error) {
	var rv R
	store, err := cache.ValidStore(ctx)
	if nil != err {
		return rv, err
	}
	return fn(store.PublicKey())
}

// CheckIdpCertificate errors with ErrUntrustedCertificate if cert is not a validated identity provider certificate.
func (self *Cache) CheckIdpCertificate(ctx context.Context, cert *x509.Certificate) error {
	store, err := self.ValidStore(ctx)
	if nil != err {
		return err
	}
	if !store.HasIdpCertificate(cert) {
		return newError(ErrUntrustedCertificate, "unknown identity provider certificate")
	}
	return nil
}

// Reset discards the current TrustedStore, the next ValidStore call refreshes it.
func (self *Cache) Reset() {
	self.mut.Lock()
	defer self.mut.Unlock()

	self.update(fsm.Event{Tag: evtReset}) // Reset is allowed in every state
}

// LastError returns the error of the last failed refresh, or nil if the Cache is not in failed state.
func (self *Cache) LastError() error {
	self.mut.Lock()
	defer self.mut.Unlock()

	return self.lastErr
}

// Stats returns Cache counters.
func (self *Cache) Stats() CacheStats {
	return CacheStats{
		Refreshes: self.refreshes.Load(),
		Fetches:   self.fetches.Load(),
		Failures:  self.failures.Load(),
	}
}

// refresh builds a TrustedStore from the persisted lists or, if they are unusable, from remote lists.
func (self *Cache) refresh(ctx context.Context) (*TrustedStore, error) {
	log := observability.GetObservability(ctx).Log()
	self.refreshes.Inc()

	lists, found, err := self.cfg.Store.LoadLists(ctx)
	if nil != err {
		log.Warn("failed loading persisted trust lists", "error", err)
		found = false
	}
	if found {
		store, err := self.build(lists)
		if nil == err {
			log.Debug("using persisted trust lists", "expires", store.ExpiresAt())
			return store, nil
		}
		log.Info("persisted trust lists rejected", "error", err)
	}
	self.invalidate(ctx)

	lists, err = self.fetch(ctx)
	if nil != err {
		self.failures.Inc()
		return nil, err
	}
	store, err := self.build(lists)
	if nil != err {
		self.failures.Inc()
		self.invalidate(ctx)
		return nil, err
	}

	lists.SavedAt = self.cfg.Clock()
	err = self.cfg.Store.SaveLists(ctx, lists)
	if nil != err {
		log.Warn("failed persisting trust lists", "error", err)
	}
	log.Info("refreshed trust store", "expires", store.ExpiresAt())

	return store, nil
}

func (self *Cache) fetch(ctx context.Context) (Lists, error) {
	var lists Lists
	var err error

	self.fetches.Inc()
	lists.Certs, err = self.cfg.Fetcher.FetchCertList(ctx)
	if nil != err {
		return lists, wrapError(ErrRemoteFetchFailed, err, "failed fetching certificate list")
	}
	lists.OCSP, err = self.cfg.Fetcher.FetchOCSPList(ctx)
	if nil != err {
		return lists, wrapError(ErrRemoteFetchFailed, err, "failed fetching OCSP list")
	}
	return lists, nil
}

// build runs Build on the wire lists, it errors if the resulting TrustedStore is already stale.
func (self *Cache) build(lists Lists) (*TrustedStore, error) {
	certs, err := ParseCertList(lists.Certs)
	if nil != err {
		return nil, err
	}
	ocspList, err := ParseOCSPList(lists.OCSP)
	if nil != err {
		return nil, err
	}
	now := self.cfg.Clock()
	store, err := Build(certs, ocspList, self.cfg.Anchor, self.cfg.Policy, self.cfg.MaxAge, now)
	if nil != err {
		return nil, err
	}
	if store.IsStale(now) {
		return nil, newError(ErrRevocationDataExpired, "trust store stale at %v", now)
	}
	return store, nil
}

func (self *Cache) invalidate(ctx context.Context) {
	err := self.cfg.Store.InvalidateLists(ctx)
	if nil != err {
		observability.GetObservability(ctx).Log().Warn("failed invalidating persisted trust lists", "error", err)
	}
}

// transition functions, called with mut held.

func (self *Cache) onRefresh(evt fsm.Event) (cacheState, error) {
	self.store = nil
	self.inflight = evt.Data.(*refresh)
	return cacheRefreshing, nil
}

func (self *Cache) onRefreshed(evt fsm.Event) (cacheState, error) {
	r := evt.Data.(*refresh)
	if r != self.inflight {
		return cacheRefreshing, newError(Error, "unexpected refresh result")
	}
	self.inflight = nil
	self.store = r.store
	self.lastErr = nil
	return cacheValid, nil
}

func (self *Cache) onRefreshFailed(evt fsm.Event) (cacheState, error) {
	r := evt.Data.(*refresh)
	if r != self.inflight {
		return cacheRefreshing, newError(Error, "unexpected refresh result")
	}
	self.inflight = nil
	self.store = nil
	self.lastErr = r.err
	return cacheFailed, nil
}

func (self *Cache) onExpire(_ fsm.Event) (cacheState, error) {
	self.store = nil
	return cacheEmpty, nil
}

func (self *Cache) onReset(_ fsm.Event) (cacheState, error) {
	self.store = nil
	self.inflight = nil
	self.lastErr = nil
	return cacheEmpty, nil
}

func (self cacheFSM) onEvent(evt fsm.Event) (cacheState, error) {
	switch evt.Tag {
	case evtRefresh:
		return self.c.onRefresh(evt)
	case evtRefreshed:
		return self.c.onRefreshed(evt)
	case evtRefreshFailed:
		return self.c.onRefreshFailed(evt)
	case evtExpire:
		return self.c.onExpire(evt)
	default:
		return self.c.onReset(evt)
	}
}

var cacheTransitions = [...]fsm.Transition[cacheState, cacheFSM]{
	cacheEmpty: {
		Allow: []string{evtRefresh, evtReset},
		Call:  cacheFSM.onEvent,
		Exit:  []cacheState{cacheRefreshing, cacheEmpty},
	},
	cacheValid: {
		Allow: []string{evtExpire, evtReset},
		Call:  cacheFSM.onEvent,
		Exit:  []cacheState{cacheEmpty},
	},
	cacheRefreshing: {
		Allow: []string{evtRefreshed, evtRefreshFailed, evtReset},
		Call:  cacheFSM.onEvent,
		Exit:  []cacheState{cacheValid, cacheFailed, cacheEmpty},
	},
	cacheFailed: {
		Allow: []string{evtRefresh, evtReset},
		Call:  cacheFSM.onEvent,
		Exit:  []cacheState{cacheRefreshing, cacheEmpty},
	},
}
