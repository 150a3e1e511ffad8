// Package gateway implements a mock VAU gateway.
//
// It publishes the certificate & OCSP lists the trust store is built from, and serves channel envelopes
// POSTed to /VAU/{alias}, dispatching the decrypted inner requests to a backend http.Handler.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdh"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"code.vaulink.org/golang/internal/observability"
	"code.vaulink.org/golang/internal/session"
	"code.vaulink.org/golang/pkg/channel"
	"code.vaulink.org/golang/pkg/trust"
)

const (
	// file names used by LoadDir
	CertListFile   = "CertList.json"
	OCSPListFile   = "OCSPList.json"
	ChannelKeyFile = "channel-key.pem"
	AnchorFile     = "anchor.pem"

	TraceIdHeader = "X-Trace-Id"

	defaultPseudonymLifetime = 30 * time.Minute
	maxEnvelopeSize          = 8 << 20
)

// Config holds the gateway configuration.
type Config struct {
	// CertList & OCSPList are the wire lists published by the gateway.
	CertList []byte
	OCSPList []byte

	// ChannelKey is the private key certified by the channel endpoint certificate.
	ChannelKey *ecdh.PrivateKey

	// Backend serves the decrypted inner requests.
	Backend http.Handler

	// PseudonymLifetime is the duration for which issued aliases remain valid, 30 minutes if zero.
	PseudonymLifetime time.Duration

	// AliasInHeader makes the gateway send newly issued aliases in the Userpseudonym header
	// instead of the response envelope.
	AliasInHeader bool
}

// Check returns an error if the Config is invalid.
func (self Config) Check() error {
	if 0 == len(self.CertList) || 0 == len(self.OCSPList) {
		return newError("missing wire lists")
	}
	if nil == self.ChannelKey {
		return newError("missing ChannelKey")
	}
	if nil == self.Backend {
		return newError("missing Backend")
	}
	if self.PseudonymLifetime < 0 {
		return newError("invalid PseudonymLifetime %v", self.PseudonymLifetime)
	}
	return nil
}

// LoadDir loads the wire lists & the channel key from the files written by "vauctl pki generate".
func LoadDir(dir string, backend http.Handler) (Config, error) {
	var cfg Config
	var err error

	cfg.CertList, err = os.ReadFile(filepath.Join(dir, CertListFile))
	if nil != err {
		return cfg, wrapError(err, "failed reading %s", CertListFile)
	}
	cfg.OCSPList, err = os.ReadFile(filepath.Join(dir, OCSPListFile))
	if nil != err {
		return cfg, wrapError(err, "failed reading %s", OCSPListFile)
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, ChannelKeyFile))
	if nil != err {
		return cfg, wrapError(err, "failed reading %s", ChannelKeyFile)
	}
	key, err := trust.ParseKeyPEM(keyPEM)
	if nil != err {
		return cfg, wrapError(err, "invalid %s", ChannelKeyFile)
	}
	cfg.ChannelKey, err = key.ECDH()
	if nil != err {
		return cfg, wrapError(err, "unsupported channel key")
	}
	cfg.Backend = backend

	return cfg, cfg.Check()
}

// Stats holds gateway counters.
type Stats struct {
	Envelopes int64 // envelopes served successfully
	Rejected  int64 // envelopes answered with 403
	Invalid   int64 // envelopes that failed to decrypt or parse
	Issued    int64 // aliases issued
	Active    int   // pseudonyms held, expired ones linger until their slot is recycled
}

type clientInfo struct {
	IssuedAt time.Time
}

// Gateway is the mock gateway http.Handler.
type Gateway struct {
	cfg        Config
	codec      channel.ServerCodec
	factory    *session.PseudonymFactory
	pseudonyms *session.MemStore[session.Pseudonym, clientInfo]
	router     chi.Router

	envelopes atomic.Int64
	rejected  atomic.Int64
	invalid   atomic.Int64
	issued    atomic.Int64
}

// New returns a Gateway. It errors if cfg is invalid.
func New(cfg Config) (*Gateway, error) {
	err := cfg.Check()
	if nil != err {
		return nil, err
	}
	if 0 == cfg.PseudonymLifetime {
		cfg.PseudonymLifetime = defaultPseudonymLifetime
	}

	pf, err := session.NewPseudonymFactory(cfg.PseudonymLifetime)
	if nil != err {
		return nil, wrapError(err, "failed NewPseudonymFactory")
	}
	pseudonyms, err := session.NewMemStore[session.Pseudonym, clientInfo](pf)
	if nil != err {
		return nil, wrapError(err, "failed NewMemStore")
	}

	gw := &Gateway{
		cfg:        cfg,
		codec:      channel.ServerCodec{Key: cfg.ChannelKey},
		factory:    pf,
		pseudonyms: pseudonyms,
	}

	r := chi.NewRouter()
	r.Use(observability.Middleware{TraceIdHeader: TraceIdHeader}.Wrap)
	r.Get("/"+trust.CertListPath, gw.serveList(cfg.CertList))
	r.Get("/"+trust.OCSPListPath, gw.serveList(cfg.OCSPList))
	r.Post("/"+channel.VAUPath+"/{alias}", gw.serveEnvelope)
	gw.router = r

	return gw, nil
}

// ServeHTTP implements http.Handler.
func (self *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	self.router.ServeHTTP(w, r)
}

// Stats returns a snapshot of the gateway counters.
func (self *Gateway) Stats() Stats {
	return Stats{
		Envelopes: self.envelopes.Load(),
		Rejected:  self.rejected.Load(),
		Invalid:   self.invalid.Load(),
		Issued:    self.issued.Load(),
		Active:    self.pseudonyms.Len(),
	}
}

func (self *Gateway) serveList(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func (self *Gateway) serveEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.GetObservability(ctx).Log()

	wire, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
	if nil != err {
		self.invalid.Inc()
		http.Error(w, "failed reading envelope", http.StatusBadRequest)
		return
	}
	req, err := self.codec.DecryptRequest(wire)
	if nil != err {
		self.invalid.Inc()
		log.Debug("failed opening envelope", "error", err)
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	ctx = observability.WithLogAttrs(ctx, "requestId", req.RequestID())
	log = observability.GetObservability(ctx).Log()

	pathAlias := chi.URLParam(r, "alias")
	if pathAlias != req.Alias {
		self.invalid.Inc()
		log.Debug("alias mismatch", "path", pathAlias, "envelope", req.Alias)
		http.Error(w, "alias mismatch", http.StatusBadRequest)
		return
	}

	issued, err := self.resolveAlias(ctx, req.Alias)
	if nil != err {
		self.rejected.Inc()
		log.Info("rejected envelope", "error", err)
		http.Error(w, "unknown alias", http.StatusForbidden)
		return
	}

	innerResp, err := self.dispatch(r, req.Payload)
	if nil != err {
		self.invalid.Inc()
		log.Debug("failed dispatching inner request", "error", err)
		http.Error(w, "invalid inner request", http.StatusBadRequest)
		return
	}

	envAlias := issued
	if self.cfg.AliasInHeader && "" != issued {
		w.Header().Set(channel.AliasHeader, issued)
		envAlias = ""
	}
	body, err := self.codec.EncryptResponse(req, envAlias, innerResp)
	if nil != err {
		self.invalid.Inc()
		log.Warn("failed sealing response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	self.envelopes.Inc()
	w.Header().Set("Content-Type", channel.ContentType)
	w.Write(body)
}

// resolveAlias returns the alias issued for a client addressing the gateway with alias,
// "" if alias is a valid pseudonym. It errors if alias is unknown or expired.
func (self *Gateway) resolveAlias(ctx context.Context, alias string) (string, error) {
	if channel.DefaultAlias == alias {
		p, err := self.pseudonyms.Save(clientInfo{IssuedAt: time.Now()})
		if nil != err {
			return "", wrapError(err, "failed issuing pseudonym")
		}
		self.issued.Inc()
		observability.GetObservability(ctx).Log().Debug("issued pseudonym", "expires", self.factory.Expires(p))
		return p.String(), nil
	}

	p, err := session.ParsePseudonym(alias)
	if nil != err {
		return "", wrapError(ErrRejected, "invalid alias, got error %v", err)
	}
	if _, found := self.pseudonyms.Get(p); !found {
		return "", wrapError(ErrRejected, "unknown or expired alias %s", alias)
	}
	return "", nil
}

// dispatch parses the inner request payload, serves it with the Backend and returns the inner response wire form.
func (self *Gateway) dispatch(outer *http.Request, payload []byte) ([]byte, error) {
	inner, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(payload)))
	if nil != err {
		return nil, wrapError(err, "failed parsing inner request")
	}
	inner = inner.WithContext(outer.Context())

	rec := newResponseBuffer()
	self.cfg.Backend.ServeHTTP(rec, inner)

	var out bytes.Buffer
	err = rec.response(inner).Write(&out)
	if nil != err {
		return nil, wrapError(err, "failed serializing inner response")
	}
	return out.Bytes(), nil
}

// responseBuffer is an http.ResponseWriter that keeps the inner response in memory.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (self *responseBuffer) Header() http.Header {
	return self.header
}

func (self *responseBuffer) Write(data []byte) (int, error) {
	if 0 == self.status {
		self.status = http.StatusOK
	}
	return self.body.Write(data)
}

func (self *responseBuffer) WriteHeader(statusCode int) {
	if 0 == self.status {
		self.status = statusCode
	}
}

func (self *responseBuffer) response(req *http.Request) *http.Response {
	status := self.status
	if 0 == status {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        self.header,
		Body:          io.NopCloser(bytes.NewReader(self.body.Bytes())),
		ContentLength: int64(self.body.Len()),
		Request:       req,
	}
}

var _ http.ResponseWriter = &responseBuffer{}
