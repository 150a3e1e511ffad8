package channel

import (
	"code.vaulink.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All Error reasons are wrapping ErrChannel
	ErrChannel = errorFlag("channel: error")

	ErrAuthRejected = errorFlag("channel: authentication rejected")
	ErrEnvelope     = errorFlag("channel: invalid envelope")
	ErrTransport    = errorFlag("channel: transport failure")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if ErrChannel == self {
		return nil
	}
	return ErrChannel
}

// Error is the only error type returned by the package operations.
//
// It unwraps to its Reason only, the failure that caused it is kept as text.
type Error struct {
	Reason errorFlag
	raised utils.RaisedErr
}

func (self *Error) Error() string {
	return self.raised.Error()
}

func (self *Error) Unwrap() error {
	return self.Reason
}

// newError returns an *Error that contains file & line of where it was called.
func newError(reason errorFlag, msg string, args ...any) error {
	raised, _ := utils.NewError(1, reason, msg, args...).(utils.RaisedErr)
	return &Error{Reason: reason, raised: raised}
}

// wrapError returns an *Error that contains file & line of where it was called.
// cause is flattened in the message. If cause is nil, wrapError returns nil.
func wrapError(reason errorFlag, cause error, msg string, args ...any) error {
	if nil == cause {
		return nil
	}
	raised, _ := utils.NewError(1, reason, msg, args...).(utils.RaisedErr)
	raised.Msg += ": " + cause.Error()
	return &Error{Reason: reason, raised: raised}
}
