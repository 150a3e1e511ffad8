package trust

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"os"
)

// ParseAnchorPEM returns the first certificate contained in the PEM data.
func ParseAnchorPEM(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if nil == block {
			return nil, newError(ErrAnchorNotFound, "no CERTIFICATE PEM block")
		}
		if "CERTIFICATE" != block.Type {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if nil != err {
			return nil, wrapError(ErrAnchorNotFound, err, "failed parsing anchor certificate")
		}
		return cert, nil
	}
}

// LoadAnchorFile reads the trust anchor from a PEM file.
func LoadAnchorFile(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if nil != err {
		return nil, wrapError(ErrAnchorNotFound, err, "failed reading anchor file")
	}
	return ParseAnchorPEM(data)
}

// EncodeAnchorPEM returns the PEM form of cert.
func EncodeAnchorPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// ParseKeyPEM parses a SEC1 PEM private key, such as the channel endpoint key.
func ParseKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if nil == block || "EC PRIVATE KEY" != block.Type {
		return nil, newError(Error, "no EC PRIVATE KEY PEM block")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if nil != err {
		return nil, wrapError(Error, err, "failed parsing private key")
	}
	return key, nil
}

// EncodeKeyPEM returns the SEC1 PEM form of key.
func EncodeKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if nil != err {
		return nil, wrapError(Error, err, "failed marshaling private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}
