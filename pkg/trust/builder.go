package trust

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/ocsp"

	palgos "code.vaulink.org/golang/pkg/algos"
)

const (
	// DefaultMaxAge bounds the age of the revocation evidence backing a TrustedStore.
	DefaultMaxAge = 12 * time.Hour
)

var (
	// OIDChannelEndpoint marks the certificate of the gateway channel endpoint.
	OIDChannelEndpoint = asn1.ObjectIdentifier{1, 2, 276, 0, 76, 4, 258}

	// OIDIdentityProvider marks the certificates of the identity provider.
	OIDIdentityProvider = asn1.ObjectIdentifier{1, 2, 276, 0, 76, 4, 260}
)

// Policy configures how a TrustedStore is selected out of the untrusted lists.
type Policy struct {
	// RootPrefix is the required Subject CN prefix of the additional roots.
	RootPrefix string

	// CAPrefix is the required Subject CN prefix of the intermediate CAs.
	CAPrefix string

	// ChannelOID marks the channel endpoint certificate.
	ChannelOID asn1.ObjectIdentifier

	// IdpOID marks identity provider certificates, they are ignored if empty.
	IdpOID asn1.ObjectIdentifier

	// MinIdpCerts is the minimum number of identity provider certificates the TrustedStore must hold.
	MinIdpCerts int

	// Provider verifies signatures, palgos.Default() is used if nil.
	Provider palgos.Provider
}

// DefaultPolicy returns the Policy of the telematics infrastructure PKI.
func DefaultPolicy() Policy {
	return Policy{
		RootPrefix: "GEM.RCA",
		CAPrefix:   "GEM.KOMP-CA",
		ChannelOID: OIDChannelEndpoint,
		IdpOID:     OIDIdentityProvider,
	}
}

// Check returns an error if the Policy is invalid.
func (self Policy) Check() error {
	if len(self.ChannelOID) == 0 {
		return newError(Error, "missing ChannelOID")
	}
	if self.MinIdpCerts < 0 {
		return newError(Error, "invalid MinIdpCerts %d", self.MinIdpCerts)
	}
	if self.MinIdpCerts > 0 && len(self.IdpOID) == 0 {
		return newError(Error, "MinIdpCerts set without IdpOID")
	}
	return nil
}

// builder holds the intermediate results of a Build.
type builder struct {
	ev        Evaluator
	policy    Policy
	maxAge    time.Duration
	now       time.Time
	responses [][]byte
	roots     []*x509.Certificate
	cas       []validatedCA
}

type validatedCA struct {
	cert     *x509.Certificate
	issuer   *x509.Certificate
	evidence *Evidence // nil until the CA revocation status was checked
}

// Build validates the untrusted lists against anchor and returns the resulting TrustedStore.
//
// Build does no I/O, now is used for every time dependent check.
func Build(certs *CertList, ocspList *OCSPList, anchor *x509.Certificate, policy Policy, maxAge time.Duration, now time.Time) (*TrustedStore, error) {
	if nil == certs || nil == ocspList {
		return nil, newError(ErrMalformed, "missing lists")
	}
	if nil == anchor {
		return nil, newError(ErrAnchorNotFound, "missing trust anchor")
	}
	err := policy.Check()
	if nil != err {
		return nil, wrapError(Error, err, "invalid policy")
	}
	if maxAge <= 0 {
		return nil, newError(Error, "invalid maxAge %v", maxAge)
	}

	parsed, err := certs.parse()
	if nil != err {
		return nil, err
	}

	b := builder{
		ev:        Evaluator{Provider: policy.Provider},
		policy:    policy,
		maxAge:    maxAge,
		now:       now,
		responses: ocspList.Responses,
	}

	// trusted roots
	b.addRoots(anchor, parsed.roots)

	// CAs chaining to a trusted root
	for _, ca := range parsed.cas {
		if !strings.HasPrefix(ca.Subject.CommonName, policy.CAPrefix) {
			continue
		}
		for _, root := range b.roots {
			if nil == b.ev.VerifyIssuedBy(ca, root, now) {
				b.cas = append(b.cas, validatedCA{cert: ca, issuer: root})
				break
			}
		}
	}
	if 0 == len(b.cas) {
		return nil, newError(ErrAnchorNotFound, "no CA chaining to %q", anchor.Subject.CommonName)
	}

	// channel endpoint leaf
	var leaf *x509.Certificate
	var ca *validatedCA
	for _, ee := range parsed.ees {
		if !hasRole(ee, policy.ChannelOID) {
			continue
		}
		ca = b.issuingCA(ee)
		if nil != ca {
			leaf = ee
			break
		}
	}
	if nil == leaf {
		return nil, newError(ErrLeafNotFound, "no channel endpoint certificate issued by a trusted CA")
	}

	// revocation status of the chain
	caEvidence, err := b.caEvidence(ca)
	if nil != err {
		return nil, err
	}
	leafEvidence, err := b.evidence(leaf, ca.cert)
	if nil != err {
		return nil, err
	}

	// channel public key
	ecpub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, newError(ErrLeafNotFound, "unsupported channel endpoint key type %T", leaf.PublicKey)
	}
	pubkey, err := ecpub.ECDH()
	if nil != err {
		return nil, wrapError(ErrLeafNotFound, err, "unsupported channel endpoint curve")
	}

	// identity provider certificates
	var idpCerts []*x509.Certificate
	if len(policy.IdpOID) > 0 {
		for _, ee := range parsed.ees {
			if !hasRole(ee, policy.IdpOID) {
				continue
			}
			idpCA := b.issuingCA(ee)
			if nil == idpCA {
				continue
			}
			if _, err = b.caEvidence(idpCA); nil != err {
				continue
			}
			if _, err = b.evidence(ee, idpCA.cert); nil != err {
				continue
			}
			idpCerts = append(idpCerts, ee)
		}
	}
	if len(idpCerts) < policy.MinIdpCerts {
		return nil, newError(ErrLeafNotFound, "found %d identity provider certificates, %d required", len(idpCerts), policy.MinIdpCerts)
	}

	chain := make([]*x509.Certificate, 0, len(b.roots)+2)
	chain = append(chain, b.roots...)
	chain = append(chain, ca.cert, leaf)

	store := TrustedStore{
		chain:       chain,
		leaf:        leaf,
		idpCerts:    idpCerts,
		evidence:    []Evidence{*caEvidence, *leafEvidence},
		publicKey:   pubkey,
		validatedAt: now,
		maxAge:      maxAge,
	}

	return &store, nil
}

// addRoots follows the cross signatures of the additional roots starting from anchor.
func (self *builder) addRoots(anchor *x509.Certificate, candidates []*x509.Certificate) {
	self.roots = []*x509.Certificate{anchor}
	pending := slices.Clone(candidates)
	for progress := true; progress; {
		progress = false
		for pos, root := range pending {
			if nil == root || !strings.HasPrefix(root.Subject.CommonName, self.policy.RootPrefix) {
				continue
			}
			for _, trusted := range self.roots {
				if nil == self.ev.VerifyIssuedBy(root, trusted, self.now) {
					self.roots = append(self.roots, root)
					pending[pos] = nil
					progress = true
					break
				}
			}
		}
	}
}

// issuingCA returns the validated CA that issued cert or nil.
func (self *builder) issuingCA(cert *x509.Certificate) *validatedCA {
	for pos := range self.cas {
		ca := &self.cas[pos]
		if nil == self.ev.VerifyIssuedBy(cert, ca.cert, self.now) {
			return ca
		}
	}
	return nil
}

// caEvidence returns the revocation evidence of ca, it is computed once per Build.
func (self *builder) caEvidence(ca *validatedCA) (*Evidence, error) {
	if nil != ca.evidence {
		return ca.evidence, nil
	}
	evidence, err := self.evidence(ca.cert, ca.issuer)
	if nil != err {
		return nil, err
	}
	ca.evidence = evidence
	return evidence, nil
}

// evidence locates & validates the OCSP status of cert issued by issuer.
func (self *builder) evidence(cert, issuer *x509.Certificate) (*Evidence, error) {
	for _, der := range self.responses {
		entry, err := self.ev.RevocationEntryForSerial(der, cert.SerialNumber)
		if nil == entry {
			// no status for cert in this response, or response not parsable
			continue
		}
		if !self.ev.MatchesRevocationEntry(cert, entry) {
			continue
		}

		responder := issuer
		if nil != entry.Certificate && !bytes.Equal(entry.Certificate.Raw, issuer.Raw) {
			responder = entry.Certificate
			verr := self.ev.VerifyIssuedBy(responder, issuer, self.now)
			if nil != verr {
				return nil, wrapError(ErrSignatureInvalid, verr, "untrusted OCSP responder for %q", cert.Subject.CommonName)
			}
			if !slices.Contains(responder.ExtKeyUsage, x509.ExtKeyUsageOCSPSigning) {
				return nil, newError(ErrSignatureInvalid, "OCSP responder %q lacks OCSPSigning usage", responder.Subject.CommonName)
			}
		}
		verr := self.ev.VerifyResponderSignature(entry, responder)
		if nil != verr {
			return nil, verr
		}
		verr = self.ev.CheckFreshness(entry, self.maxAge, self.now)
		if nil != verr {
			return nil, verr
		}

		switch {
		case errors.Is(err, ErrCertificateRevoked):
			return nil, err
		case ocsp.Good == entry.Status:
			return &Evidence{Certificate: cert, Response: entry}, nil
		default:
			return nil, newError(ErrRevocationMissing, "OCSP status of %q is unknown", cert.Subject.CommonName)
		}
	}

	return nil, newError(ErrRevocationMissing, "no OCSP status for %q", cert.Subject.CommonName)
}
