package trust

import (
	"bytes"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/ocsp"

	"code.vaulink.org/golang/internal/algos"
	palgos "code.vaulink.org/golang/pkg/algos"
)

var (
	// OIDCertHash identifies the OCSP single response extension that carries a hash of the whole certificate.
	OIDCertHash = algos.OIDCertHash

	// OIDAdmission identifies the certificate extension that carries profession & role OIDs.
	OIDAdmission = asn1.ObjectIdentifier{1, 3, 36, 8, 3, 3}
)

// ocsp.ParseResponseForCert error returned when a response holds no status for the requested serial.
const errNoMatchingResponse = ocsp.ParseError("no response matching the supplied certificate")

// Evaluator verifies certificates & OCSP responses using a crypto Provider.
type Evaluator struct {
	Provider palgos.Provider
}

func (self Evaluator) provider() palgos.Provider {
	if nil == self.Provider {
		return palgos.Default()
	}
	return self.Provider
}

// VerifyIssuedBy errors with ErrSignatureInvalid if cert was not signed by issuer,
// if issuer is not a CA or if now is out of cert validity period.
func (self Evaluator) VerifyIssuedBy(cert, issuer *x509.Certificate, now time.Time) error {
	if nil == cert || nil == issuer {
		return newError(ErrSignatureInvalid, "nil certificate")
	}
	if !issuer.BasicConstraintsValid || !issuer.IsCA {
		return newError(ErrSignatureInvalid, "issuer %q is not a CA", issuer.Subject.CommonName)
	}
	if !bytes.Equal(cert.RawIssuer, issuer.RawSubject) {
		return newError(ErrSignatureInvalid, "issuer name mismatch for %q", cert.Subject.CommonName)
	}
	err := self.provider().VerifySignature(cert, issuer)
	if nil != err {
		return wrapError(ErrSignatureInvalid, err, "%q not signed by %q", cert.Subject.CommonName, issuer.Subject.CommonName)
	}
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return newError(ErrSignatureInvalid, "%q not valid at %v", cert.Subject.CommonName, now)
	}

	return nil
}

// MatchesRevocationEntry returns true if entry refers to cert.
//
// If entry has a CertHash extension, the cert DER hash is compared with the extension hash.
// Otherwise the entry serial number is compared with the cert serial number.
func (self Evaluator) MatchesRevocationEntry(cert *x509.Certificate, entry *ocsp.Response) bool {
	if nil == cert || nil == entry {
		return false
	}
	for _, ext := range entry.Extensions {
		if !ext.Id.Equal(OIDCertHash) {
			continue
		}
		hash, digest, err := algos.ParseCertHash(ext.Value)
		if nil != err {
			return false
		}
		h := hash.New()
		h.Write(cert.Raw)
		return 1 == subtle.ConstantTimeCompare(h.Sum(nil), digest)
	}

	return nil != entry.SerialNumber && 0 == entry.SerialNumber.Cmp(cert.SerialNumber)
}

// RevocationEntryForSerial returns the status entry for serial contained in the DER OCSP response.
//
// It returns nil, nil if the response holds no entry for serial.
// If the entry reports serial as revoked, the entry is returned with an ErrCertificateRevoked error.
// An entry with unknown status is returned without error.
func (self Evaluator) RevocationEntryForSerial(der []byte, serial *big.Int) (*ocsp.Response, error) {
	if nil == serial {
		return nil, newError(ErrMalformed, "nil serial")
	}
	entry, err := ocsp.ParseResponseForCert(der, &x509.Certificate{SerialNumber: serial}, nil)
	if nil != err {
		if errors.Is(err, errNoMatchingResponse) {
			return nil, nil
		}
		return nil, wrapError(ErrMalformed, err, "failed parsing OCSP response")
	}
	if ocsp.Revoked == entry.Status {
		return entry, newError(ErrCertificateRevoked, "serial %X revoked at %v", serial, entry.RevokedAt)
	}

	return entry, nil
}

// VerifyResponderSignature errors with ErrSignatureInvalid if entry was not signed by responder.
func (self Evaluator) VerifyResponderSignature(entry *ocsp.Response, responder *x509.Certificate) error {
	if nil == entry || nil == responder {
		return newError(ErrSignatureInvalid, "missing OCSP entry or responder")
	}
	err := entry.CheckSignatureFrom(responder)
	if nil != err {
		return wrapError(ErrSignatureInvalid, err, "OCSP response not signed by %q", responder.Subject.CommonName)
	}
	return nil
}

// CheckFreshness errors with ErrRevocationDataExpired unless ProducedAt <= now <= ProducedAt + maxAge.
func (self Evaluator) CheckFreshness(entry *ocsp.Response, maxAge time.Duration, now time.Time) error {
	if nil == entry {
		return newError(ErrRevocationDataExpired, "missing OCSP entry")
	}
	if now.Before(entry.ProducedAt) || now.After(entry.ProducedAt.Add(maxAge)) {
		return newError(
			ErrRevocationDataExpired,
			"OCSP response produced at %v is not fresh at %v (max age %v)",
			entry.ProducedAt,
			now,
			maxAge,
		)
	}
	return nil
}

// MarshalCertHash returns the DER CertHash extension value for cert using the hash identified by name.
func MarshalCertHash(cert *x509.Certificate, name string) ([]byte, error) {
	srz, err := algos.MarshalCertHash(name, cert.Raw)
	if nil != err {
		return nil, wrapError(Error, err, "failed building CertHash")
	}
	return srz, nil
}

// hasRole returns true if cert declares role in its policies or in its admission extension.
func hasRole(cert *x509.Certificate, role asn1.ObjectIdentifier) bool {
	if len(role) == 0 {
		return false
	}
	for _, policy := range cert.PolicyIdentifiers {
		if policy.Equal(role) {
			return true
		}
	}

	var b cryptobyte.Builder
	b.AddASN1ObjectIdentifier(role)
	derOID, err := b.Bytes()
	if nil != err {
		return false
	}
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(OIDAdmission) && bytes.Contains(ext.Value, derOID) {
			return true
		}
	}

	return false
}
