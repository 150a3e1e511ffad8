package securemsg

import (
	"crypto/aes"
	"crypto/cipher"
	"sync"

	"github.com/awnumar/memguard"
)

// KeySet holds the secure messaging encryption & MAC keys in memguard locked buffers.
//
// A KeySet is never persisted. Destroy wipes the keys, later use errors with ErrClosed.
type KeySet struct {
	mut sync.Mutex
	enc *memguard.LockedBuffer
	mac *memguard.LockedBuffer
}

// NewKeySet moves kEnc & kMac into locked memory and wipes the source slices.
//
// Both keys must be AES keys (16, 24 or 32 bytes).
func NewKeySet(kEnc, kMac []byte) (*KeySet, error) {
	if !validKeySize(len(kEnc)) || !validKeySize(len(kMac)) {
		memguard.WipeBytes(kEnc)
		memguard.WipeBytes(kMac)
		return nil, newError(ErrMalformed, "invalid key sizes %d/%d", len(kEnc), len(kMac))
	}

	enc := memguard.NewBufferFromBytes(kEnc)
	enc.Freeze()
	mac := memguard.NewBufferFromBytes(kMac)
	mac.Freeze()

	return &KeySet{enc: enc, mac: mac}, nil
}

func validKeySize(size int) bool {
	return 16 == size || 24 == size || 32 == size
}

// Destroy wipes the keys.
func (self *KeySet) Destroy() {
	if nil == self {
		return
	}
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil != self.enc {
		self.enc.Destroy()
		self.enc = nil
	}
	if nil != self.mac {
		self.mac.Destroy()
		self.mac = nil
	}
}

// ciphers returns AES block ciphers keyed with kEnc & kMac.
func (self *KeySet) ciphers() (enc cipher.Block, mac cipher.Block, err error) {
	if nil == self {
		return nil, nil, newError(ErrClosed, "missing KeySet")
	}
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil == self.enc || nil == self.mac {
		return nil, nil, newError(ErrClosed, "KeySet destroyed")
	}
	enc, err = aes.NewCipher(self.enc.Bytes())
	if nil != err {
		return nil, nil, wrapError(ErrMalformed, err, "failed loading kEnc")
	}
	mac, err = aes.NewCipher(self.mac.Bytes())
	if nil != err {
		return nil, nil, wrapError(ErrMalformed, err, "failed loading kMac")
	}

	return enc, mac, nil
}
