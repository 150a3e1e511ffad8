package transport

import (
	"sync"
)

// DropTransport is a Transport whose link is lost after a number of written messages.
//
// It simulates a card pulled out of its reader, and is provided to simplify link failure testing.
type DropTransport struct {
	Transport
	mut     sync.Mutex
	limit   int
	written int
	dropped bool
}

// NewDropTransport returns a DropTransport that wraps t & loses its link after limit written messages.
// A negative limit never drops the link.
func NewDropTransport(t Transport, limit int) *DropTransport {
	return &DropTransport{Transport: t, limit: limit}
}

// Written returns the number of messages successfully written.
func (self *DropTransport) Written() int {
	self.mut.Lock()
	defer self.mut.Unlock()

	return self.written
}

// Dropped returns true once the link is lost.
func (self *DropTransport) Dropped() bool {
	self.mut.Lock()
	defer self.mut.Unlock()

	return self.dropped
}

// WriteBytes errors with LinkLostError once limit messages were written.
func (self *DropTransport) WriteBytes(data []byte) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	if self.limit >= 0 && self.written >= self.limit {
		self.dropped = true
	}
	if self.dropped {
		return wrapError(LinkLostError, "link lost after %d messages", self.written)
	}
	err := self.Transport.WriteBytes(data)
	if nil != err {
		return err
	}
	self.written += 1

	return nil
}

// ReadBytes errors with LinkLostError if the link is lost, pending messages are discarded.
func (self *DropTransport) ReadBytes() ([]byte, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if self.dropped {
		return nil, wrapError(LinkLostError, "link lost")
	}
	return self.Transport.ReadBytes()
}

var _ Transport = &DropTransport{}
