// Package testpki generates small certificate hierarchies & OCSP responses shaped like the telematics
// infrastructure PKI. It is used by tests, by the mock gateway and by the vauctl pki command.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/crypto/ocsp"

	"code.vaulink.org/golang/internal/algos"
	"code.vaulink.org/golang/internal/utils"
)

var (
	// OIDChannelEndpoint is the role of the channel endpoint certificate.
	OIDChannelEndpoint = asn1.ObjectIdentifier{1, 2, 276, 0, 76, 4, 258}

	// OIDIdentityProvider is the role of the identity provider certificates.
	OIDIdentityProvider = asn1.ObjectIdentifier{1, 2, 276, 0, 76, 4, 260}

	oidAdmission = asn1.ObjectIdentifier{1, 3, 36, 8, 3, 3}
)

// Entity is a certificate with its private key.
type Entity struct {
	Cert   *x509.Certificate
	Key    *ecdsa.PrivateKey
	Issuer *Entity // nil for self signed certificates
}

// Options configures New.
type Options struct {
	// Now is the reference time, time.Now() is used if zero.
	Now time.Time

	// Validity is the certificates lifetime, 1 year is used if 0.
	Validity time.Duration

	// Curve is the curve of the certificate keys, P256 is used if nil.
	Curve elliptic.Curve

	// Rand is the key generation entropy source, crypto/rand.Reader is used if nil.
	Rand io.Reader
}

// PKI is a trust anchor with a cross signed root, a component CA and its end entities.
type PKI struct {
	Anchor    *Entity // GEM.RCA1, self signed
	CrossRoot *Entity // GEM.RCA2, issued by Anchor
	CA        *Entity // GEM.KOMP-CA10, issued by CrossRoot
	Leaf      *Entity // channel endpoint, issued by CA
	Idp       *Entity // identity provider, issued by CA
	Responder *Entity // OCSP signer delegated by CA

	opts   Options
	serial int64
}

// New generates a PKI.
func New(opts Options) (*PKI, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if 0 == opts.Validity {
		opts.Validity = 365 * 24 * time.Hour
	}
	if nil == opts.Curve {
		opts.Curve = elliptic.P256()
	}
	if nil == opts.Rand {
		opts.Rand = rand.Reader
	}

	var err error
	pki := &PKI{opts: opts, serial: 0x1000}

	pki.Anchor, err = pki.NewCA("GEM.RCA1", nil)
	if nil != err {
		return nil, err
	}
	pki.CrossRoot, err = pki.NewCA("GEM.RCA2", pki.Anchor)
	if nil != err {
		return nil, err
	}
	pki.CA, err = pki.NewCA("GEM.KOMP-CA10", pki.CrossRoot)
	if nil != err {
		return nil, err
	}
	pki.Leaf, err = pki.NewEntity("vau.ti-dienste.de", pki.CA, PolicyRole(OIDChannelEndpoint))
	if nil != err {
		return nil, err
	}
	pki.Idp, err = pki.NewEntity("idp.ti-dienste.de", pki.CA, func(tmpl *x509.Certificate) {
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, AdmissionExtension(OIDIdentityProvider))
	})
	if nil != err {
		return nil, err
	}
	pki.Responder, err = pki.NewEntity("GEM.KOMP-CA10 OCSP Signer", pki.CA, func(tmpl *x509.Certificate) {
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning}
	})
	if nil != err {
		return nil, err
	}

	return pki, nil
}

// Now returns the PKI reference time.
func (self *PKI) Now() time.Time {
	return self.opts.Now
}

// NewCA returns a new CA Entity issued by issuer, or self signed if issuer is nil.
func (self *PKI) NewCA(cn string, issuer *Entity) (*Entity, error) {
	return self.newEntity(cn, issuer, true, nil)
}

// NewEntity returns a new end entity issued by issuer.
// If customize is not nil, it is called with the certificate template before signing.
func (self *PKI) NewEntity(cn string, issuer *Entity, customize func(*x509.Certificate)) (*Entity, error) {
	return self.newEntity(cn, issuer, false, customize)
}

func (self *PKI) newEntity(cn string, issuer *Entity, isCA bool, customize func(*x509.Certificate)) (*Entity, error) {
	key, err := ecdsa.GenerateKey(self.opts.Curve, self.opts.Rand)
	if nil != err {
		return nil, wrapError(err, "failed generating key for %q", cn)
	}

	self.serial += 1
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(self.serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"vaulink test"}, Country: []string{"DE"}},
		NotBefore:             self.opts.Now.Add(-time.Hour),
		NotAfter:              self.opts.Now.Add(self.opts.Validity),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyAgreement
	}
	if nil != customize {
		customize(tmpl)
	}

	parent := tmpl
	var signer crypto.Signer = key
	if nil != issuer {
		parent = issuer.Cert
		signer = issuer.Key
	}
	der, err := x509.CreateCertificate(self.opts.Rand, tmpl, parent, &key.PublicKey, signer)
	if nil != err {
		return nil, wrapError(err, "failed creating certificate %q", cn)
	}
	cert, err := x509.ParseCertificate(der)
	if nil != err {
		return nil, wrapError(err, "failed parsing certificate %q", cn)
	}

	return &Entity{Cert: cert, Key: key, Issuer: issuer}, nil
}

// AddRoots returns the DER of the cross signed roots.
func (self *PKI) AddRoots() [][]byte {
	return [][]byte{self.CrossRoot.Cert.Raw}
}

// CACerts returns the DER of the component CAs.
func (self *PKI) CACerts() [][]byte {
	return [][]byte{self.CA.Cert.Raw}
}

// EECerts returns the DER of the end entities.
func (self *PKI) EECerts() [][]byte {
	return [][]byte{self.Leaf.Cert.Raw, self.Idp.Cert.Raw}
}

// ResponseOptions configures PKI.Response.
type ResponseOptions struct {
	// Status is one of ocsp.Good, ocsp.Revoked or ocsp.Unknown.
	Status int

	// Responder signs the response. The subject issuer is used if nil,
	// otherwise Responder certificate is embedded in the response.
	Responder *Entity

	// NoCertHash disables the CertHash extension.
	NoCertHash bool

	// CertHashOf overrides the certificate hashed in the CertHash extension.
	CertHashOf *x509.Certificate
}

// Response returns a DER OCSP response holding subject status.
//
// The response ProducedAt is set by ocsp.CreateResponse from the current time.
func (self *PKI) Response(subject *Entity, opts ResponseOptions) ([]byte, error) {
	if nil == subject || nil == subject.Issuer {
		return nil, newError("subject has no issuer")
	}
	issuer := subject.Issuer

	tmpl := ocsp.Response{
		Status:       opts.Status,
		SerialNumber: subject.Cert.SerialNumber,
		ThisUpdate:   self.opts.Now.Add(-time.Minute),
		NextUpdate:   self.opts.Now.Add(24 * time.Hour),
		IssuerHash:   crypto.SHA256,
	}
	if ocsp.Revoked == opts.Status {
		tmpl.RevokedAt = self.opts.Now.Add(-time.Minute)
		tmpl.RevocationReason = ocsp.KeyCompromise
	}
	if !opts.NoCertHash {
		hashed := subject.Cert
		if nil != opts.CertHashOf {
			hashed = opts.CertHashOf
		}
		value, err := algos.MarshalCertHash(algos.HASH_SHA256, hashed.Raw)
		if nil != err {
			return nil, wrapError(err, "failed building CertHash")
		}
		tmpl.ExtraExtensions = []pkix.Extension{{Id: algos.OIDCertHash, Value: value}}
	}

	responder := issuer
	if nil != opts.Responder {
		responder = opts.Responder
		tmpl.Certificate = responder.Cert
	}

	der, err := ocsp.CreateResponse(issuer.Cert, responder.Cert, tmpl, responder.Key)
	if nil != err {
		return nil, wrapError(err, "failed creating OCSP response for %q", subject.Cert.Subject.CommonName)
	}
	return der, nil
}

// GoodResponses returns "good" OCSP responses for CA, Leaf & Idp.
// The Leaf response is signed by the delegated Responder.
func (self *PKI) GoodResponses() ([][]byte, error) {
	caResp, err := self.Response(self.CA, ResponseOptions{Status: ocsp.Good})
	if nil != err {
		return nil, err
	}
	leafResp, err := self.Response(self.Leaf, ResponseOptions{Status: ocsp.Good, Responder: self.Responder})
	if nil != err {
		return nil, err
	}
	idpResp, err := self.Response(self.Idp, ResponseOptions{Status: ocsp.Good})
	if nil != err {
		return nil, err
	}
	return [][]byte{caResp, leafResp, idpResp}, nil
}

// PolicyRole returns a NewEntity customization that declares role in the certificate policies.
func PolicyRole(role asn1.ObjectIdentifier) func(*x509.Certificate) {
	return func(tmpl *x509.Certificate) {
		tmpl.PolicyIdentifiers = append(tmpl.PolicyIdentifiers, role)
		tmpl.Policies = append(tmpl.Policies, mustOID(role))
	}
}

// AdmissionExtension returns an admission extension declaring role.
//
//	AdmissionSyntax ::= SEQUENCE { contentsOfAdmissions SEQUENCE OF Admissions }
//	Admissions ::= SEQUENCE { professionInfos SEQUENCE OF ProfessionInfo }
//	ProfessionInfo ::= SEQUENCE { professionItems SEQUENCE OF DirectoryString, professionOIDs SEQUENCE OF OID }
func AdmissionExtension(role asn1.ObjectIdentifier) pkix.Extension {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
							b.AddASN1(cbasn1.UTF8String, func(b *cryptobyte.Builder) {
								b.AddBytes([]byte(role.String()))
							})
						})
						b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
							b.AddASN1ObjectIdentifier(role)
						})
					})
				})
			})
		})
	})
	return pkix.Extension{Id: oidAdmission, Value: b.BytesOrPanic()}
}

// EncodeCertPEM returns the PEM form of cert.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func mustOID(oid asn1.ObjectIdentifier) x509.OID {
	ints := make([]uint64, len(oid))
	for pos, v := range oid {
		ints[pos] = uint64(v)
	}
	rv, err := x509.OIDFromInts(ints)
	if nil != err {
		panic(err)
	}
	return rv
}

type errorFlag string

const (
	Error = errorFlag("testpki: error")
)

func (self errorFlag) Error() string {
	return string(self)
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
