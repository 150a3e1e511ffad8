package trust

import (
	"bytes"
	"crypto/ecdh"
	"crypto/x509"
	"slices"
	"time"

	"golang.org/x/crypto/ocsp"
)

// Evidence is a validated OCSP status for Certificate.
type Evidence struct {
	Certificate *x509.Certificate
	Response    *ocsp.Response
}

// TrustedStore holds a validated certificate chain, the revocation evidence for its CA & leaf
// and the channel public key extracted from the leaf.
//
// TrustedStore values are only obtained from Build and are never modified.
type TrustedStore struct {
	chain       []*x509.Certificate // anchor, additional roots, CA, leaf
	leaf        *x509.Certificate
	idpCerts    []*x509.Certificate
	evidence    []Evidence
	publicKey   *ecdh.PublicKey
	validatedAt time.Time
	maxAge      time.Duration
}

// Anchor returns the trust anchor at the root of the chain.
func (self *TrustedStore) Anchor() *x509.Certificate {
	return self.chain[0]
}

// Chain returns a copy of the validated chain, starting with the anchor and ending with the leaf.
func (self *TrustedStore) Chain() []*x509.Certificate {
	return slices.Clone(self.chain)
}

// Leaf returns the channel endpoint certificate.
func (self *TrustedStore) Leaf() *x509.Certificate {
	return self.leaf
}

// PublicKey returns the channel endpoint public key.
func (self *TrustedStore) PublicKey() *ecdh.PublicKey {
	return self.publicKey
}

// IdpCertificates returns a copy of the validated identity provider certificates.
func (self *TrustedStore) IdpCertificates() []*x509.Certificate {
	return slices.Clone(self.idpCerts)
}

// Evidence returns a copy of the revocation evidence.
func (self *TrustedStore) Evidence() []Evidence {
	return slices.Clone(self.evidence)
}

// ValidatedAt returns the time at which the TrustedStore was built.
func (self *TrustedStore) ValidatedAt() time.Time {
	return self.validatedAt
}

// MaxAge returns the maximum age of the TrustedStore.
func (self *TrustedStore) MaxAge() time.Duration {
	return self.maxAge
}

// ExpiresAt returns the time at which the TrustedStore becomes stale.
//
// It is the earliest of ValidatedAt + MaxAge, ProducedAt + MaxAge of the revocation evidence
// and NotAfter of the chain certificates.
func (self *TrustedStore) ExpiresAt() time.Time {
	rv := self.validatedAt.Add(self.maxAge)
	for _, ev := range self.evidence {
		if nil == ev.Response {
			continue
		}
		if t := ev.Response.ProducedAt.Add(self.maxAge); t.Before(rv) {
			rv = t
		}
	}
	for _, cert := range self.chain {
		if cert.NotAfter.Before(rv) {
			rv = cert.NotAfter
		}
	}
	return rv
}

// IsStale returns true if now is not before ExpiresAt.
func (self *TrustedStore) IsStale(now time.Time) bool {
	return !now.Before(self.ExpiresAt())
}

// HasIdpCertificate returns true if cert is one of the validated identity provider certificates.
func (self *TrustedStore) HasIdpCertificate(cert *x509.Certificate) bool {
	if nil == cert {
		return false
	}
	for _, idp := range self.idpCerts {
		if bytes.Equal(idp.Raw, cert.Raw) {
			return true
		}
	}
	return false
}
