// Package channel wraps HTTP messages in an encrypted envelope addressed to the gateway channel key.
//
// A request envelope is
//
//	version(1) | ephemeral public key | nonce(12) | AES-GCM(inner request)
//
// and the matching response envelope is
//
//	nonce(12) | AES-GCM(inner response)
//
// Inner messages are "1 <request id> <alias> <payload>", the request id is the hex form of 16 random bytes
// and the alias is the pseudonym the gateway assigned to the client session.
package channel

import (
	"bytes"
	"crypto/ecdh"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"code.vaulink.org/golang/internal/algos"
	palgos "code.vaulink.org/golang/pkg/algos"
)

const (
	Version = 1

	nonceSize     = 12
	keySize       = 16
	tagSize       = 16
	requestIDSize = 16
	maxAliasSize  = 256

	infoRequest  = "ecies-vau-transport"
	infoResponse = "ecies-vau-response"
)

// EphemeralState holds what the client needs to decrypt the response matching an encrypted request.
type EphemeralState struct {
	requestID [requestIDSize]byte
	secret    []byte
	serverKey []byte
}

// RequestID returns the hex form of the request identifier.
func (self *EphemeralState) RequestID() string {
	return hex.EncodeToString(self.requestID[:])
}

// Destroy erases the shared secret. A destroyed EphemeralState can not decrypt responses.
func (self *EphemeralState) Destroy() {
	if nil == self {
		return
	}
	clear(self.secret)
	self.secret = nil
}

// Codec encrypts requests & decrypts responses on the client side.
// Codec methods are safe for concurrent use.
type Codec struct {
	// Provider supplies randomness & AEAD ciphers, palgos.Default() is used if nil.
	Provider palgos.Provider
}

func (self Codec) provider() palgos.Provider {
	if nil == self.Provider {
		return palgos.Default()
	}
	return self.Provider
}

// EncryptRequest returns the envelope that carries plain to the holder of serverKey,
// with the EphemeralState needed to decrypt the response.
func (self Codec) EncryptRequest(plain []byte, alias string, serverKey *ecdh.PublicKey) ([]byte, *EphemeralState, error) {
	if nil == serverKey {
		return nil, nil, newError(ErrEnvelope, "missing server key")
	}
	err := CheckAlias(alias)
	if nil != err {
		return nil, nil, err
	}
	provider := self.provider()
	rnd := provider.Rand()

	eph, err := serverKey.Curve().GenerateKey(rnd)
	if nil != err {
		return nil, nil, wrapError(ErrEnvelope, err, "failed generating ephemeral key")
	}
	secret, err := eph.ECDH(serverKey)
	if nil != err {
		return nil, nil, wrapError(ErrEnvelope, err, "failed ECDH")
	}

	state := &EphemeralState{secret: secret, serverKey: serverKey.Bytes()}
	_, err = io.ReadFull(rnd, state.requestID[:])
	if nil != err {
		return nil, nil, wrapError(ErrEnvelope, err, "failed generating request id")
	}

	key, err := deriveKey(secret, nil, infoRequest)
	if nil != err {
		return nil, nil, err
	}
	aead, err := provider.NewAEAD(key)
	if nil != err {
		return nil, nil, wrapError(ErrEnvelope, err, "failed creating request cipher")
	}

	ephPub := eph.PublicKey().Bytes()
	wire := make([]byte, 0, 1+len(ephPub)+nonceSize+len(plain)+len(alias)+64+tagSize)
	wire = append(wire, Version)
	wire = append(wire, ephPub...)
	header := len(wire)
	wire = wire[:header+nonceSize]
	_, err = io.ReadFull(rnd, wire[header:])
	if nil != err {
		return nil, nil, wrapError(ErrEnvelope, err, "failed generating nonce")
	}

	inner := marshalInner(state.requestID, alias, plain)
	wire = aead.Seal(wire, wire[header:], inner, wire[:header])

	return wire, state, nil
}

// DecryptResponse returns the payload & the alias carried by the response envelope wire.
// wireRequest is the envelope returned by the EncryptRequest call that created state.
// The returned alias is empty if the gateway did not assign one.
func (self Codec) DecryptResponse(wire, wireRequest []byte, state *EphemeralState, serverKey *ecdh.PublicKey) ([]byte, string, error) {
	if nil == state || nil == state.secret {
		return nil, "", newError(ErrEnvelope, "invalid EphemeralState")
	}
	if nil == serverKey || 1 != subtle.ConstantTimeCompare(serverKey.Bytes(), state.serverKey) {
		return nil, "", newError(ErrEnvelope, "server key mismatch")
	}
	if len(wire) < nonceSize+tagSize {
		return nil, "", newError(ErrEnvelope, "response envelope too short, %d bytes", len(wire))
	}

	key, err := deriveKey(state.secret, state.requestID[:], infoResponse)
	if nil != err {
		return nil, "", err
	}
	aead, err := self.provider().NewAEAD(key)
	if nil != err {
		return nil, "", wrapError(ErrEnvelope, err, "failed creating response cipher")
	}
	aad := sha256.Sum256(wireRequest)
	inner, err := aead.Open(nil, wire[:nonceSize], wire[nonceSize:], aad[:])
	if nil != err {
		return nil, "", wrapError(ErrEnvelope, err, "failed authenticating response")
	}

	requestID, alias, payload, err := unmarshalInner(inner)
	if nil != err {
		return nil, "", err
	}
	if requestID != state.requestID {
		return nil, "", newError(ErrEnvelope, "request id mismatch")
	}

	return payload, alias, nil
}

// CheckAlias errors with ErrEnvelope if alias can not be carried in an envelope or in the gateway URL path.
func CheckAlias(alias string) error {
	if 0 == len(alias) || len(alias) > maxAliasSize {
		return newError(ErrEnvelope, "invalid alias length %d", len(alias))
	}
	for pos := 0; pos < len(alias); pos++ {
		c := alias[pos]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case '-' == c, '_' == c, '.' == c, '~' == c:
		default:
			return newError(ErrEnvelope, "invalid alias character at %d", pos)
		}
	}
	return nil
}

func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	_, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key)
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed HKDF")
	}
	return key, nil
}

func marshalInner(requestID [requestIDSize]byte, alias string, payload []byte) []byte {
	rv := make([]byte, 0, 4+2*requestIDSize+len(alias)+len(payload))
	rv = append(rv, '0'+Version, ' ')
	rv = hex.AppendEncode(rv, requestID[:])
	rv = append(rv, ' ')
	rv = append(rv, alias...)
	rv = append(rv, ' ')
	return append(rv, payload...)
}

// unmarshalInner splits an inner message, an empty alias is allowed.
func unmarshalInner(inner []byte) ([requestIDSize]byte, string, []byte, error) {
	var requestID [requestIDSize]byte

	parts := bytes.SplitN(inner, []byte{' '}, 4)
	if 4 != len(parts) {
		return requestID, "", nil, newError(ErrEnvelope, "malformed inner message")
	}
	if 1 != len(parts[0]) || '0'+Version != parts[0][0] {
		return requestID, "", nil, newError(ErrEnvelope, "unsupported inner message version")
	}
	if hex.EncodedLen(requestIDSize) != len(parts[1]) {
		return requestID, "", nil, newError(ErrEnvelope, "invalid request id length")
	}
	_, err := hex.Decode(requestID[:], parts[1])
	if nil != err {
		return requestID, "", nil, wrapError(ErrEnvelope, err, "invalid request id")
	}
	alias := string(parts[2])
	if "" != alias {
		err = CheckAlias(alias)
		if nil != err {
			return requestID, "", nil, err
		}
	}

	return requestID, alias, parts[3], nil
}

// publicKeyLen returns the size of the ephemeral public keys sent on curve.
func publicKeyLen(curve ecdh.Curve) (int, error) {
	regcurve, err := algos.LookupCurve(curve)
	if nil != err {
		return 0, wrapError(ErrEnvelope, err, "unsupported channel curve")
	}
	return regcurve.PublicKeyLen(), nil
}
