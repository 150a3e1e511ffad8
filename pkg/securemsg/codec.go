// Package securemsg implements ISO 7816-4 secure messaging for AES smart cards.
//
// Protected commands carry their data encrypted in DO87 and their expected length in DO97.
// Both are authenticated by an 8 bytes AES-CMAC in DO8E computed over a 16 bytes send sequence
// counter (SSC) that is incremented before each command & each response.
package securemsg

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	sscSize = 16
	macSize = 8

	// secure messaging indication in CLA
	claSM = 0x0C

	tagPlainData  = asn1.Tag(0x81)
	tagCryptogram = asn1.Tag(0x87)
	tagLe         = asn1.Tag(0x97)
	tagStatus     = asn1.Tag(0x99)
	tagMAC        = asn1.Tag(0x8E)

	// padding content indicator of DO87
	paddedISO = 0x01

	minResponseSize = 12
)

// Codec protects commands & unprotects responses of a single secure messaging session.
//
// Codec serializes calls on a mutex. Once a response MAC fails to verify, the Codec is closed
// and every later call errors with ErrClosed.
type Codec struct {
	mut    sync.Mutex
	ssc    [sscSize]byte
	closed bool
}

// NewCodec returns a Codec with a zero SSC.
func NewCodec() *Codec {
	return &Codec{}
}

// NewCodecAt returns a Codec whose SSC holds counter, the next call uses counter + 1.
func NewCodecAt(counter uint64) *Codec {
	codec := &Codec{}
	binary.BigEndian.PutUint64(codec.ssc[sscSize-8:], counter)
	return codec
}

// Close wipes the SSC, later calls error with ErrClosed.
func (self *Codec) Close() {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.close()
}

func (self *Codec) close() {
	clear(self.ssc[:])
	self.closed = true
}

// Closed returns true if the Codec can no more be used.
func (self *Codec) Closed() bool {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.closed
}

// EncryptCommand returns the protected form of cmd.
//
// cmd CLA must not already signal secure messaging.
func (self *Codec) EncryptCommand(cmd CommandAPDU, keys *KeySet) (CommandAPDU, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	var out CommandAPDU
	if self.closed {
		return out, newError(ErrClosed, "codec closed")
	}
	err := cmd.Check()
	if nil != err {
		return out, err
	}
	if claSM == cmd.CLA&claSM {
		return out, newError(ErrMalformed, "CLA 0x%02X already signals secure messaging", cmd.CLA)
	}
	encBlock, macBlock, err := keys.ciphers()
	if nil != err {
		return out, err
	}
	err = self.increment()
	if nil != err {
		return out, err
	}

	out.CLA = cmd.CLA | claSM
	out.INS, out.P1, out.P2 = cmd.INS, cmd.P1, cmd.P2

	var objects cryptobyte.Builder
	if len(cmd.Data) > 0 {
		ct := self.encrypt(encBlock, cmd.Data)
		objects.AddASN1(tagCryptogram, func(b *cryptobyte.Builder) {
			b.AddUint8(paddedISO)
			b.AddBytes(ct)
		})
	}
	if cmd.Ne > 0 {
		objects.AddASN1(tagLe, func(b *cryptobyte.Builder) {
			if cmd.Ne <= MaxShortNe {
				b.AddUint8(uint8(cmd.Ne))
			} else {
				b.AddUint16(uint16(cmd.Ne))
			}
		})
	}
	dos, err := objects.Bytes()
	if nil != err {
		return out, wrapError(ErrMalformed, err, "failed encoding data objects")
	}

	bs := macBlock.BlockSize()
	macInput := make([]byte, 0, sscSize+bs+len(dos)+bs)
	macInput = append(macInput, self.ssc[:]...)
	macInput = append(macInput, padISO(out.Header(), bs)...)
	if len(dos) > 0 {
		macInput = append(macInput, padISO(dos, bs)...)
	}
	mac, err := cmacSum(macBlock, macInput, macSize)
	if nil != err {
		return out, err
	}

	data := cryptobyte.NewBuilder(dos)
	data.AddASN1(tagMAC, func(b *cryptobyte.Builder) {
		b.AddBytes(mac)
	})
	out.Data, err = data.Bytes()
	if nil != err {
		return out, wrapError(ErrMalformed, err, "failed encoding DO8E")
	}

	switch {
	case cmd.Ne > 0:
		out.Ne = MaxExtendedNe
	case len(out.Data) <= maxShortNc:
		out.Ne = MaxShortNe
	default:
		out.Ne = MaxExtendedNe
	}
	err = out.Check()
	if nil != err {
		return CommandAPDU{}, err
	}

	return out, nil
}

// DecryptResponse verifies & decrypts a protected response.
//
// It returns the plain response data with the status word carried in DO99.
func (self *Codec) DecryptResponse(resp ResponseAPDU, keys *KeySet) (ResponseAPDU, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	var out ResponseAPDU
	if self.closed {
		return out, newError(ErrClosed, "codec closed")
	}
	encBlock, macBlock, err := keys.ciphers()
	if nil != err {
		return out, err
	}
	err = self.increment()
	if nil != err {
		return out, err
	}
	if len(resp.Data)+2 < minResponseSize {
		return out, newError(ErrMalformed, "response too short, %d bytes", len(resp.Data)+2)
	}

	var dataDO, statusDO, content, mac cryptobyte.String
	var tag asn1.Tag
	src := cryptobyte.String(resp.Data)
	if src.PeekASN1Tag(tagPlainData) || src.PeekASN1Tag(tagCryptogram) {
		if !src.ReadAnyASN1Element(&dataDO, &tag) {
			return out, newError(ErrMalformed, "invalid data object")
		}
	}
	if !src.ReadAnyASN1Element(&statusDO, &tag) || tagStatus != tag {
		return out, newError(ErrMalformed, "missing DO99")
	}
	status := cryptobyte.String(statusDO)
	if !status.ReadASN1(&content, tagStatus) || 2 != len(content) {
		return out, newError(ErrMalformed, "invalid DO99")
	}
	sw1, sw2 := content[0], content[1]
	if !src.ReadASN1(&mac, tagMAC) || macSize != len(mac) {
		return out, newError(ErrMalformed, "missing DO8E")
	}
	if !src.Empty() {
		return out, newError(ErrMalformed, "unexpected data after DO8E")
	}

	bs := macBlock.BlockSize()
	macInput := make([]byte, 0, sscSize+len(dataDO)+len(statusDO)+bs)
	macInput = append(macInput, self.ssc[:]...)
	macInput = append(macInput, padISO(append(append([]byte{}, dataDO...), statusDO...), bs)...)
	expected, err := cmacSum(macBlock, macInput, macSize)
	if nil != err {
		return out, err
	}
	if 1 != subtle.ConstantTimeCompare(expected, mac) {
		self.close()
		return out, newError(ErrMacMismatch, "response MAC mismatch")
	}

	var data []byte
	if len(dataDO) > 0 {
		do := cryptobyte.String(dataDO)
		if !do.ReadAnyASN1(&content, &tag) {
			return out, newError(ErrMalformed, "invalid data object")
		}
		switch tag {
		case tagPlainData:
			data = append([]byte{}, content...)
		case tagCryptogram:
			data, err = self.decrypt(encBlock, content)
			if nil != err {
				return out, err
			}
		}
	}

	return ResponseAPDU{Data: data, SW1: sw1, SW2: sw2}, nil
}

// increment increments the SSC, wrapping to zero closes the Codec.
func (self *Codec) increment() error {
	lo := binary.BigEndian.Uint64(self.ssc[8:]) + 1
	binary.BigEndian.PutUint64(self.ssc[8:], lo)
	if 0 == lo {
		hi := binary.BigEndian.Uint64(self.ssc[:8]) + 1
		binary.BigEndian.PutUint64(self.ssc[:8], hi)
		if 0 == hi {
			self.close()
			return newError(ErrCounterOverflow, "SSC wrapped")
		}
	}
	return nil
}

// iv returns the encryption of the SSC with kEnc.
func (self *Codec) iv(block cipher.Block) []byte {
	iv := make([]byte, block.BlockSize())
	block.Encrypt(iv, self.ssc[:])
	return iv
}

func (self *Codec) encrypt(block cipher.Block, data []byte) []byte {
	padded := padISO(data, block.BlockSize())
	cipher.NewCBCEncrypter(block, self.iv(block)).CryptBlocks(padded, padded)
	return padded
}

func (self *Codec) decrypt(block cipher.Block, content []byte) ([]byte, error) {
	bs := block.BlockSize()
	if 0 == len(content) || paddedISO != content[0] {
		return nil, newError(ErrMalformed, "invalid DO87 padding indicator")
	}
	ct := content[1:]
	if 0 == len(ct) || 0 != len(ct)%bs {
		return nil, newError(ErrMalformed, "invalid DO87 cryptogram size %d", len(ct))
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, self.iv(block)).CryptBlocks(plain, ct)
	return unpadISO(plain)
}
