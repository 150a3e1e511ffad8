// Package algos defines the capability interface through which vaulink components reach cryptographic primitives.
//
// A host application selects a Provider (software, hardware backed...) and hands it to the components that need it.
package algos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/x509"
	"io"
)

// Provider supplies randomness, certificate signature verification and AEAD ciphers.
type Provider interface {
	// Rand returns the source of randomness used for keys, nonces and request identifiers.
	Rand() io.Reader

	// VerifySignature checks that cert was signed by issuer.
	VerifySignature(cert, issuer *x509.Certificate) error

	// NewAEAD returns an AEAD cipher keyed with key.
	NewAEAD(key []byte) (cipher.AEAD, error)
}

// SoftwareProvider is a Provider backed by the go standard library crypto packages.
type SoftwareProvider struct {
	// Random overrides crypto/rand.Reader if not nil.
	Random io.Reader
}

// Rand returns Random or crypto/rand.Reader.
func (self SoftwareProvider) Rand() io.Reader {
	if nil == self.Random {
		return rand.Reader
	}
	return self.Random
}

// VerifySignature checks the signature on cert using issuer public key.
func (self SoftwareProvider) VerifySignature(cert, issuer *x509.Certificate) error {
	if nil == cert || nil == issuer {
		return newError("nil certificate")
	}
	err := issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature)
	return wrapError(err, "invalid certificate signature") // nil if err is nil
}

// NewAEAD returns an AES-GCM cipher with 12 bytes nonce and 16 bytes tag.
// It errors if key is not a valid AES key.
func (self SoftwareProvider) NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if nil != err {
		return nil, wrapError(err, "failed cipher.NewGCM")
	}
	return aead, nil
}

var _ Provider = SoftwareProvider{}

// Default returns a SoftwareProvider that uses crypto/rand.Reader.
func Default() Provider {
	return SoftwareProvider{}
}
