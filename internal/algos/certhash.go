package algos

import (
	"encoding/asn1"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// OIDCertHash identifies the OCSP single response extension that carries a hash of the whole certificate.
var OIDCertHash = asn1.ObjectIdentifier{1, 3, 36, 8, 3, 13}

// MarshalCertHash returns the DER CertHash value for the certificate der using the Hash registered with name.
//
//	CertHash ::= SEQUENCE { hashAlgorithm AlgorithmIdentifier, certificateHash OCTET STRING }
func MarshalCertHash(name string, der []byte) ([]byte, error) {
	hash, err := GetHash(name)
	if nil != err {
		return nil, wrapError(err, "unsupported CertHash algorithm")
	}
	h := hash.New()
	h.Write(der)
	digest := h.Sum(nil)

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(hash.OID)
		})
		b.AddASN1OctetString(digest)
	})
	srz, err := b.Bytes()
	if nil != err {
		return nil, wrapError(err, "failed encoding CertHash")
	}
	return srz, nil
}

// ParseCertHash decodes a DER CertHash value. It errors if the value is malformed
// or if its hash algorithm is not registered.
func ParseCertHash(value []byte) (Hash, []byte, error) {
	var seq, algId cryptobyte.String
	var hashOID asn1.ObjectIdentifier
	var digest []byte

	input := cryptobyte.String(value)
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return Hash{}, nil, newError("invalid CertHash SEQUENCE")
	}
	if !seq.ReadASN1(&algId, cbasn1.SEQUENCE) || !algId.ReadASN1ObjectIdentifier(&hashOID) {
		return Hash{}, nil, newError("invalid CertHash AlgorithmIdentifier")
	}
	if !seq.ReadASN1Bytes(&digest, cbasn1.OCTET_STRING) || !seq.Empty() {
		return Hash{}, nil, newError("invalid CertHash certificateHash")
	}

	hash, err := GetHashByOID(hashOID)
	if nil != err {
		return Hash{}, nil, err
	}
	if len(digest) != hash.Size() {
		return Hash{}, nil, newError("invalid CertHash digest size %d", len(digest))
	}

	return hash, digest, nil
}
