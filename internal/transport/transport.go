// Package transport moves raw messages between a host and a card link or a relay.
package transport

import (
	"encoding/binary"
	"io"
)

// Transport reads and writes whole messages.
type Transport interface {
	ReadBytes() ([]byte, error)
	WriteBytes(data []byte) error
}

// T aliases Transport
type T = Transport

// Exchange writes msg to t and returns the next message read from t.
//
// Card links are half duplex, each command message is answered by a single response message.
func Exchange(t Transport, msg []byte) ([]byte, error) {
	err := t.WriteBytes(msg)
	if nil != err {
		return nil, wrapError(err, "failed transport WriteBytes")
	}
	rmsg, err := t.ReadBytes()
	if nil != err {
		return nil, wrapError(err, "failed transport ReadBytes")
	}
	return rmsg, nil
}

// RWTransport frames messages over a byte stream using a big endian uint16 length prefix.
type RWTransport struct {
	R io.Reader // source from which messages are read.
	W io.Writer // destination to which messages are written.
}

func (self RWTransport) ReadBytes() ([]byte, error) {
	// read size
	psb := make([]byte, 2)
	_, err := io.ReadFull(self.R, psb)
	if nil != err {
		return nil, wrapError(err, "failed reading data size")
	}
	psz := binary.BigEndian.Uint16(psb)

	// read data
	data := make([]byte, int(psz))
	_, err = io.ReadFull(self.R, data)
	if nil != err {
		return nil, wrapError(err, "failed reading data")
	}

	return data, nil
}

func (self RWTransport) WriteBytes(data []byte) error {
	if len(data) > 0xFFFF {
		return newError("data larger than %d", 0xFFFF)
	}

	// prefix data with uint16 length
	pdata := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(pdata, uint16(len(data)))
	copy(pdata[2:], data)

	_, err := self.W.Write(pdata)

	return wrapError(err, "failed writing data") // nil if err is nil
}

var _ Transport = RWTransport{}

// TransportFunc adapts a function that answers each written message into a Transport.
//
// It is used to plug a card simulator in place of a physical link.
type TransportFunc func(msg []byte) ([]byte, error)

type funcTransport struct {
	f       TransportFunc
	pending [][]byte
}

// NewFuncTransport returns a Transport that queues f(msg) for every written msg.
func NewFuncTransport(f TransportFunc) Transport {
	return &funcTransport{f: f}
}

func (self *funcTransport) WriteBytes(msg []byte) error {
	rmsg, err := self.f(msg)
	if nil != err {
		return wrapError(err, "failed TransportFunc")
	}
	self.pending = append(self.pending, rmsg)
	return nil
}

func (self *funcTransport) ReadBytes() ([]byte, error) {
	if 0 == len(self.pending) {
		return nil, wrapError(io.EOF, "no pending message")
	}
	rmsg := self.pending[0]
	self.pending = self.pending[1:]
	return rmsg, nil
}
