package channel

import (
	"context"
	"crypto/ecdh"
	"net/http"

	"code.vaulink.org/golang/internal/observability"
	"code.vaulink.org/golang/pkg/trust"
)

// KeySource supplies the currently valid channel endpoint public key.
type KeySource interface {
	PublicKey(ctx context.Context) (*ecdh.PublicKey, error)
}

// CacheKeySource is a KeySource backed by a trust.Cache.
type CacheKeySource struct {
	Cache *trust.Cache
}

// PublicKey returns the public key of the valid trust.TrustedStore, refreshing it if needed.
func (self CacheKeySource) PublicKey(ctx context.Context) (*ecdh.PublicKey, error) {
	return trust.WithValidPublicKey(ctx, self.Cache, func(pubkey *ecdh.PublicKey) (*ecdh.PublicKey, error) {
		return pubkey, nil
	})
}

// StaticKeySource is a KeySource that always returns the same key.
type StaticKeySource struct {
	Key *ecdh.PublicKey
}

func (self StaticKeySource) PublicKey(_ context.Context) (*ecdh.PublicKey, error) {
	if nil == self.Key {
		return nil, newError(ErrEnvelope, "missing static key")
	}
	return self.Key, nil
}

// Config holds Channel collaborators.
type Config struct {
	Keys    KeySource
	Session *Session // a Session backed by a MemAliasStore is used if nil
	Codec   Codec
}

// Check returns an error if the Config is invalid.
func (self Config) Check() error {
	if nil == self.Keys {
		return newError(ErrTransport, "missing KeySource")
	}
	return nil
}

// WireEnvelope is an encrypted request waiting for its response.
type WireEnvelope struct {
	// Alias addresses the request, it is sent in the gateway URL path.
	Alias string

	// Body is the request envelope.
	Body []byte

	state     *EphemeralState
	serverKey *ecdh.PublicKey
}

// RequestID returns the hex form of the envelope request identifier.
func (self *WireEnvelope) RequestID() string {
	return self.state.RequestID()
}

// Channel encrypts requests for the gateway & maintains the client alias.
//
// Every *Error returned by Channel methods resets the alias to DefaultAlias before being returned.
type Channel struct {
	keys    KeySource
	session *Session
	codec   Codec
}

// New returns a Channel. It errors if cfg is invalid.
func New(cfg Config) (*Channel, error) {
	err := cfg.Check()
	if nil != err {
		return nil, err
	}
	if nil == cfg.Session {
		cfg.Session = NewSession(nil)
	}
	return &Channel{keys: cfg.Keys, session: cfg.Session, codec: cfg.Codec}, nil
}

// Session returns the Channel Session.
func (self *Channel) Session() *Session {
	return self.session
}

// WrapOutboundRequest encrypts plain for the gateway using the current alias.
//
// Errors obtaining the channel key are returned unchanged, they are trust errors and do not affect the alias.
func (self *Channel) WrapOutboundRequest(ctx context.Context, plain []byte) (*WireEnvelope, error) {
	serverKey, err := self.keys.PublicKey(ctx)
	if nil != err {
		return nil, err
	}
	alias, err := self.session.Alias(ctx)
	if nil != err {
		return nil, self.fail(ctx, err)
	}

	wire, state, err := self.codec.EncryptRequest(plain, alias, serverKey)
	if nil != err {
		return nil, self.fail(ctx, err)
	}

	return &WireEnvelope{Alias: alias, Body: wire, state: state, serverKey: serverKey}, nil
}

// UnwrapInboundResponse decrypts the gateway response to env.
//
// status is the outer HTTP status, body the outer response body and headerAlias the alias the gateway
// may have sent in the Userpseudonym header. The alias carried by the envelope has precedence.
// The EphemeralState of env is destroyed once UnwrapInboundResponse returns.
func (self *Channel) UnwrapInboundResponse(ctx context.Context, env *WireEnvelope, status int, body []byte, headerAlias string) ([]byte, error) {
	if nil == env {
		return nil, self.fail(ctx, newError(ErrEnvelope, "missing WireEnvelope"))
	}
	defer env.state.Destroy()

	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, self.fail(ctx, newError(ErrAuthRejected, "gateway rejected alias, status %d", status))
	default:
		return nil, self.fail(ctx, newError(ErrTransport, "unexpected gateway status %d", status))
	}

	plain, alias, err := self.codec.DecryptResponse(body, env.Body, env.state, env.serverKey)
	if nil != err {
		return nil, self.fail(ctx, err)
	}

	if "" == alias && "" != headerAlias {
		alias = headerAlias
	}
	if "" != alias && alias != env.Alias {
		err = self.session.Update(ctx, alias)
		if nil != err {
			return nil, self.fail(ctx, err)
		}
	}

	return plain, nil
}

// fail resets the alias & returns err as an *Error.
func (self *Channel) fail(ctx context.Context, err error) error {
	log := observability.GetObservability(ctx).Log()
	rerr := self.session.Reset(ctx)
	if nil != rerr {
		log.Warn("failed resetting channel alias", "error", rerr)
	}

	cerr, ok := err.(*Error)
	if !ok {
		cerr = wrapError(ErrEnvelope, err, "channel failure").(*Error)
	}
	log.Debug("channel failure", "reason", cerr.Reason)

	return cerr
}
