package trust

import (
	"code.vaulink.org/golang/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("trust: error")

	ErrAnchorNotFound        = errorFlag("trust: no CA chaining to the trust anchor")
	ErrLeafNotFound          = errorFlag("trust: no channel endpoint certificate")
	ErrRevocationMissing     = errorFlag("trust: missing revocation status")
	ErrCertificateRevoked    = errorFlag("trust: certificate revoked")
	ErrSignatureInvalid      = errorFlag("trust: invalid signature")
	ErrRevocationDataExpired = errorFlag("trust: revocation data expired")
	ErrRemoteFetchFailed     = errorFlag("trust: remote fetch failed")
	ErrUntrustedCertificate  = errorFlag("trust: certificate not in trust store")
	ErrStorage               = errorFlag("trust: storage failure")
	ErrMalformed             = errorFlag("trust: malformed list")
	noError                  = errorFlag("")
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
