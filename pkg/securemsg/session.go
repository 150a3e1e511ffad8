package securemsg

import (
	"context"

	"code.vaulink.org/golang/internal/observability"
	"code.vaulink.org/golang/internal/transport"
)

// Session binds a Codec to the KeySet negotiated with a card.
type Session struct {
	codec *Codec
	keys  *KeySet
}

// NewSession returns a Session that protects APDUs with keys, starting from a zero SSC.
func NewSession(keys *KeySet) (*Session, error) {
	if nil == keys {
		return nil, newError(ErrClosed, "missing KeySet")
	}
	return &Session{codec: NewCodec(), keys: keys}, nil
}

// WrapCommandAPDU returns the raw encoding of the protected form of cmd.
func (self *Session) WrapCommandAPDU(cmd CommandAPDU) ([]byte, error) {
	protected, err := self.codec.EncryptCommand(cmd, self.keys)
	if nil != err {
		return nil, err
	}
	return protected.Bytes()
}

// UnwrapResponseAPDU verifies & decrypts the raw protected response raw.
func (self *Session) UnwrapResponseAPDU(raw []byte) (ResponseAPDU, error) {
	resp, err := ParseResponseAPDU(raw)
	if nil != err {
		return ResponseAPDU{}, err
	}
	return self.codec.DecryptResponse(resp, self.keys)
}

// Transceive sends the protected form of cmd over t & returns the unprotected card response.
func (self *Session) Transceive(ctx context.Context, t transport.Transport, cmd CommandAPDU) (ResponseAPDU, error) {
	log := observability.GetObservability(ctx).Log()

	err := ctx.Err()
	if nil != err {
		return ResponseAPDU{}, wrapError(ErrClosed, err, "context done")
	}

	msg, err := self.WrapCommandAPDU(cmd)
	if nil != err {
		return ResponseAPDU{}, err
	}
	rmsg, err := transport.Exchange(t, msg)
	if nil != err {
		return ResponseAPDU{}, wrapError(Error, err, "failed card exchange")
	}
	resp, err := self.UnwrapResponseAPDU(rmsg)
	if nil != err {
		log.Warn("secure messaging failure", "ins", cmd.INS, "error", err)
		return ResponseAPDU{}, err
	}
	log.Debug("secure messaging exchange", "ins", cmd.INS, "sw", resp.SW())

	return resp, nil
}

// Close closes the Codec & destroys the KeySet.
func (self *Session) Close() {
	self.codec.Close()
	self.keys.Destroy()
}
