package securemsg

import (
	"code.vaulink.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("securemsg: error")

	ErrMacMismatch     = errorFlag("securemsg: MAC mismatch")
	ErrPaddingInvalid  = errorFlag("securemsg: invalid padding")
	ErrCounterOverflow = errorFlag("securemsg: send sequence counter overflow")
	ErrMalformed       = errorFlag("securemsg: malformed APDU")
	ErrClosed          = errorFlag("securemsg: codec closed")
	noError            = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

// newError returns a utils.RaisedErr{} flagged with flag that contains file & line of where it was called.
func newError(flag errorFlag, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}

// wrapError returns a utils.RaisedErr{} flagged with flag that contains file & line of where it was called.
func wrapError(flag errorFlag, cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, flag, msg, args...)
}
