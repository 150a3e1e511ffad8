package algos

import (
	"crypto"
	"encoding/asn1"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	_ "golang.org/x/crypto/sha3"

	"code.vaulink.org/golang/internal/utils"
)

const (
	HASH_SHA1     = "SHA1"
	HASH_SHA256   = "SHA256"
	HASH_SHA384   = "SHA384"
	HASH_SHA512   = "SHA512"
	HASH_SHA3_256 = "SHA3/256"
	HASH_SHA3_384 = "SHA3/384"
	HASH_SHA3_512 = "SHA3/512"
)

// Hash associates a crypto.Hash with the AlgorithmIdentifier OID used in certificates and OCSP messages.
type Hash struct {
	crypto.Hash
	Name string
	OID  asn1.ObjectIdentifier
}

var hashRegistry *utils.Registry[string, Hash]
var hashOIDRegistry *utils.Registry[string, Hash]

// MustRegisterHash adds hash to the Hash registry. It panics if name is already in use or hash is invalid.
func MustRegisterHash(name string, hash crypto.Hash, oid asn1.ObjectIdentifier) {
	err := RegisterHash(name, hash, oid)
	if nil != err {
		panic(err)
	}
}

// RegisterHash adds hash to the Hash registry. It errors if name or oid is already in use or hash is invalid.
func RegisterHash(name string, hash crypto.Hash, oid asn1.ObjectIdentifier) error {
	if !hash.Available() {
		return newError("missing implementation for Hash %s", name)
	}
	if len(oid) == 0 {
		return newError("missing OID for Hash %s", name)
	}
	reghash := Hash{Hash: hash, Name: name, OID: oid}
	err := hashRegistry.Set(name, reghash)
	if nil != err {
		return wrapError(err, "failed registering Hash algorithm, %s", name)
	}
	return wrapError(
		hashOIDRegistry.Set(oid.String(), reghash),
		"failed registering Hash algorithm OID, %s",
		oid,
	)
}

// GetHash loads Hash implementation from the registry. It errors if no hash was registered with name.
func GetHash(name string) (Hash, error) {
	hash, found := hashRegistry.Get(name)
	if !found {
		return hash, newError("unsupported Hash algorithm, %s", name)
	}
	return hash, nil

}

// GetHashByOID loads the Hash identified by oid. It errors if no hash was registered with oid.
func GetHashByOID(oid asn1.ObjectIdentifier) (Hash, error) {
	hash, found := hashOIDRegistry.Get(oid.String())
	if !found {
		return hash, newError("unsupported Hash algorithm OID, %s", oid)
	}
	return hash, nil
}

// ListHashes returns the sorted names of the registered Hash algorithms.
func ListHashes() []string {
	return hashRegistry.Names()
}

func init() {
	hashRegistry = utils.NewRegistry[string, Hash]()
	hashOIDRegistry = utils.NewRegistry[string, Hash]()
	MustRegisterHash(HASH_SHA1, crypto.SHA1, asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26})
	MustRegisterHash(HASH_SHA256, crypto.SHA256, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1})
	MustRegisterHash(HASH_SHA384, crypto.SHA384, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2})
	MustRegisterHash(HASH_SHA512, crypto.SHA512, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3})
	MustRegisterHash(HASH_SHA3_256, crypto.SHA3_256, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8})
	MustRegisterHash(HASH_SHA3_384, crypto.SHA3_384, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 9})
	MustRegisterHash(HASH_SHA3_512, crypto.SHA3_512, asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10})
}
