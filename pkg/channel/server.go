package channel

import (
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/hex"
	"io"

	palgos "code.vaulink.org/golang/pkg/algos"
)

// Request is a request envelope opened by a ServerCodec.
type Request struct {
	Alias   string // alias the client addressed the request with
	Payload []byte

	requestID [requestIDSize]byte
	secret    []byte
	wireHash  [sha256.Size]byte
}

// RequestID returns the hex form of the request identifier.
func (self *Request) RequestID() string {
	return hex.EncodeToString(self.requestID[:])
}

// ServerCodec decrypts requests & encrypts responses on the gateway side.
type ServerCodec struct {
	// Key is the channel endpoint private key, its public key is certified by the channel endpoint certificate.
	Key *ecdh.PrivateKey

	// Provider supplies randomness & AEAD ciphers, palgos.Default() is used if nil.
	Provider palgos.Provider
}

func (self ServerCodec) provider() palgos.Provider {
	if nil == self.Provider {
		return palgos.Default()
	}
	return self.Provider
}

// DecryptRequest opens the request envelope wire.
func (self ServerCodec) DecryptRequest(wire []byte) (*Request, error) {
	if nil == self.Key {
		return nil, newError(ErrEnvelope, "missing channel key")
	}
	pubLen, err := publicKeyLen(self.Key.Curve())
	if nil != err {
		return nil, err
	}
	header := 1 + pubLen
	if len(wire) < header+nonceSize+tagSize {
		return nil, newError(ErrEnvelope, "request envelope too short, %d bytes", len(wire))
	}
	if Version != wire[0] {
		return nil, newError(ErrEnvelope, "unsupported envelope version %d", wire[0])
	}

	ephPub, err := self.Key.Curve().NewPublicKey(wire[1:header])
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "invalid ephemeral key")
	}
	secret, err := self.Key.ECDH(ephPub)
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed ECDH")
	}
	key, err := deriveKey(secret, nil, infoRequest)
	if nil != err {
		return nil, err
	}
	aead, err := self.provider().NewAEAD(key)
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed creating request cipher")
	}
	nonce := wire[header : header+nonceSize]
	inner, err := aead.Open(nil, nonce, wire[header+nonceSize:], wire[:header])
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed authenticating request")
	}

	requestID, alias, payload, err := unmarshalInner(inner)
	if nil != err {
		return nil, err
	}
	if "" == alias {
		return nil, newError(ErrEnvelope, "missing request alias")
	}

	return &Request{
		Alias:     alias,
		Payload:   payload,
		requestID: requestID,
		secret:    secret,
		wireHash:  sha256.Sum256(wire),
	}, nil
}

// EncryptResponse returns the response envelope carrying payload for req.
// alias is the alias assigned to the client, it may be empty.
func (self ServerCodec) EncryptResponse(req *Request, alias string, payload []byte) ([]byte, error) {
	if nil == req || nil == req.secret {
		return nil, newError(ErrEnvelope, "invalid Request")
	}
	if "" != alias {
		err := CheckAlias(alias)
		if nil != err {
			return nil, err
		}
	}
	provider := self.provider()

	key, err := deriveKey(req.secret, req.requestID[:], infoResponse)
	if nil != err {
		return nil, err
	}
	aead, err := provider.NewAEAD(key)
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed creating response cipher")
	}

	inner := marshalInner(req.requestID, alias, payload)
	wire := make([]byte, nonceSize, nonceSize+len(inner)+tagSize)
	_, err = io.ReadFull(provider.Rand(), wire)
	if nil != err {
		return nil, wrapError(ErrEnvelope, err, "failed generating nonce")
	}

	return aead.Seal(wire, wire, inner, req.wireHash[:]), nil
}
