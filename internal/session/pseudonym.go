package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

const (
	pseudonymSize = 32
	pseudonymMac  = 16
)

// Pseudonym is an opaque session identifier handed out to channel clients.
//
// Its layout is T(8) | random(8) | HMAC-SHA256(T | random)[:16].
type Pseudonym [pseudonymSize]byte

// T returns the pseudo time at which the Pseudonym was generated.
func (self Pseudonym) T() int64 {
	return int64(binary.BigEndian.Uint64(self[:8]))
}

// String returns the hexadecimal form of the Pseudonym, used on the wire.
func (self Pseudonym) String() string {
	return hex.EncodeToString(self[:])
}

// ParsePseudonym decodes the hexadecimal form of a Pseudonym.
// It errors if s is not a well formed Pseudonym, it does not check its validity.
func ParsePseudonym(s string) (Pseudonym, error) {
	var rv Pseudonym
	if hex.EncodedLen(pseudonymSize) != len(s) {
		return rv, newError("invalid Pseudonym length %d", len(s))
	}
	_, err := hex.Decode(rv[:], []byte(s))
	if nil != err {
		return rv, wrapError(err, "invalid Pseudonym encoding")
	}
	return rv, nil
}

// PseudonymFactory generates & validates Pseudonyms that expire after a configured lifetime.
type PseudonymFactory struct {
	clock  Clock
	secret [32]byte
}

// NewPseudonymFactory returns a PseudonymFactory whose Pseudonyms expire after lifetime.
// It errors if lifetime is too short to be split in numSlot steps.
func NewPseudonymFactory(lifetime time.Duration) (*PseudonymFactory, error) {
	if lifetime < numSlot {
		return nil, newError("invalid lifetime %v", lifetime)
	}
	pf := &PseudonymFactory{}
	err := pf.clock.Init(lifetime / numSlot)
	if nil != err {
		return nil, wrapError(err, "failed clock Init")
	}
	rand.Read(pf.secret[:])

	return pf, nil
}

// New returns a fresh Pseudonym.
func (self *PseudonymFactory) New() Pseudonym {
	var p Pseudonym
	binary.BigEndian.PutUint64(p[:8], uint64(self.clock.T()))
	rand.Read(p[8:16])
	copy(p[16:], self.mac(p))

	return p
}

// Check errors if p was not generated by the PseudonymFactory or if it has expired.
func (self *PseudonymFactory) Check(p Pseudonym) error {
	if !hmac.Equal(p[16:], self.mac(p)) {
		return wrapError(ErrKeyTampered, "invalid Pseudonym mac")
	}
	age := self.clock.T() - p.T()
	if age < 0 || age >= numSlot {
		return wrapError(ErrKeyExpired, "Pseudonym age %d", age)
	}
	return nil
}

// Expires returns the time at which p stops being valid.
func (self *PseudonymFactory) Expires(p Pseudonym) time.Time {
	return self.clock.At(p.T() + numSlot)
}

func (self *PseudonymFactory) mac(p Pseudonym) []byte {
	h := hmac.New(sha256.New, self.secret[:])
	h.Write(p[:16])
	return h.Sum(nil)[:pseudonymMac]
}

var _ KeyFactory[Pseudonym] = &PseudonymFactory{}
