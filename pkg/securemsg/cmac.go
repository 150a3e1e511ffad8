package securemsg

import (
	"crypto/cipher"

	"github.com/aead/cmac"
)

// cmacSum computes the AES-CMAC (RFC 4493) of msg, truncated to size bytes.
func cmacSum(block cipher.Block, msg []byte, size int) ([]byte, error) {
	tag, err := cmac.Sum(msg, block, block.BlockSize())
	if nil != err {
		return nil, wrapError(Error, err, "failed cmac.Sum")
	}
	if size > 0 && size < len(tag) {
		tag = tag[:size]
	}
	return tag, nil
}

// padISO returns data padded with 0x80 followed by zeros up to a multiple of bs.
func padISO(data []byte, bs int) []byte {
	size := (len(data)/bs + 1) * bs
	padded := make([]byte, size)
	copy(padded, data)
	padded[len(data)] = 0x80
	return padded
}

// unpadISO removes the ISO 7816-4 padding of data.
func unpadISO(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		switch data[i] {
		case 0x00:
			continue
		case 0x80:
			return data[:i], nil
		default:
			return nil, newError(ErrPaddingInvalid, "unexpected padding byte 0x%02X", data[i])
		}
	}
	return nil, newError(ErrPaddingInvalid, "missing padding marker")
}
