package utils

import (
	"encoding/hex"
)

// HexBinary is a byte slice whose text form is hexadecimal.
//
// It implements the pflag.Value interface, allowing binary command line flags.
type HexBinary []byte

func (self *HexBinary) UnmarshalText(text []byte) error {
	var dst []byte
	hxsz := hex.DecodedLen(len(text))
	if cap([]byte(*self)) >= hxsz {
		dst = []byte(*self)[:0]
	} else {
		dst = make([]byte, 0, hxsz)
	}

	dst, err := hex.AppendDecode(dst, text)
	if nil != err {
		return err
	}

	*self = HexBinary(dst)
	return nil
}

func (self HexBinary) MarshalText() ([]byte, error) {
	var dst []byte
	dst = hex.AppendEncode(dst, []byte(self))
	return dst, nil
}

// String returns the hexadecimal form of self.
func (self HexBinary) String() string {
	return hex.EncodeToString(self)
}

// Set decodes the hexadecimal value s, ignoring spaces.
func (self *HexBinary) Set(s string) error {
	clean := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if ' ' != c && ':' != c {
			clean = append(clean, c)
		}
	}
	return self.UnmarshalText(clean)
}

// Type returns the flag value type name.
func (self *HexBinary) Type() string {
	return "hex"
}
