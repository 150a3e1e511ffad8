package securemsg

import (
	iso "cunicu.li/go-iso7816"
)

const (
	// MaxShortNe is the largest expected length of a short APDU, encoded as 00.
	MaxShortNe = 256

	// MaxExtendedNe is the largest expected length of an extended APDU, encoded as 00 00.
	MaxExtendedNe = 65536

	maxShortNc    = 255
	maxExtendedNc = 65535
)

// CommandAPDU is an ISO 7816-4 command. Ne is the expected response length, 0 if no response data is expected.
type CommandAPDU struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	Ne   int
}

// Header returns CLA INS P1 P2.
func (self CommandAPDU) Header() []byte {
	return []byte{self.CLA, self.INS, self.P1, self.P2}
}

// Check returns an error if the command can not be encoded.
func (self CommandAPDU) Check() error {
	if len(self.Data) > maxExtendedNc {
		return newError(ErrMalformed, "command data too large, %d bytes", len(self.Data))
	}
	if self.Ne < 0 || self.Ne > MaxExtendedNe {
		return newError(ErrMalformed, "invalid Ne %d", self.Ne)
	}
	return nil
}

// Bytes returns the command raw encoding, using the short form when it is possible.
func (self CommandAPDU) Bytes() ([]byte, error) {
	err := self.Check()
	if nil != err {
		return nil, err
	}

	capdu := iso.CAPDU{
		Cla:  self.CLA,
		Ins:  iso.Instruction(self.INS),
		P1:   self.P1,
		P2:   self.P2,
		Data: self.Data,
		Ne:   self.Ne,
	}
	raw, err := capdu.Bytes()
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "failed encoding command")
	}

	return raw, nil
}

// ParseCommandAPDU parses the raw encoding of a command, either short or extended.
func ParseCommandAPDU(raw []byte) (CommandAPDU, error) {
	capdu, err := iso.ParseCAPDU(raw)
	if nil != err {
		return CommandAPDU{}, wrapError(ErrMalformed, err, "failed parsing command %X", raw)
	}

	return CommandAPDU{
		CLA:  capdu.Cla,
		INS:  byte(capdu.Ins),
		P1:   capdu.P1,
		P2:   capdu.P2,
		Data: capdu.Data,
		Ne:   capdu.Ne,
	}, nil
}

// ResponseAPDU is an ISO 7816-4 response.
type ResponseAPDU struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// SW returns the response status word.
func (self ResponseAPDU) SW() uint16 {
	return uint16(self.SW1)<<8 | uint16(self.SW2)
}

// Bytes returns Data || SW1 SW2.
func (self ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(self.Data)+2)
	out = append(out, self.Data...)
	return append(out, self.SW1, self.SW2)
}

// ParseResponseAPDU parses the raw encoding of a response.
func ParseResponseAPDU(raw []byte) (ResponseAPDU, error) {
	if len(raw) < 2 {
		return ResponseAPDU{}, newError(ErrMalformed, "response too short, %d bytes", len(raw))
	}
	rapdu, err := iso.ParseRAPDU(raw)
	if nil != err {
		return ResponseAPDU{}, wrapError(ErrMalformed, err, "failed parsing response, %d bytes", len(raw))
	}

	return ResponseAPDU{Data: rapdu.Data, SW1: rapdu.SW1, SW2: rapdu.SW2}, nil
}
