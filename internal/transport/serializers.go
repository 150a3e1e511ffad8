package transport

import (
	"github.com/fxamacker/cbor/v2"
)

// Serializer is an interface that provides methods to Marshal/Unmarshal records.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if nil != err {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 16,
	}.DecMode()
	if nil != err {
		panic(err)
	}
}

// CBORSerializer encodes records in deterministic CBOR, time values keep their nanoseconds.
// Its Unmarshal rejects duplicated map keys.
type CBORSerializer struct{}

func (self CBORSerializer) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (self CBORSerializer) Unmarshal(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

var _ Serializer = CBORSerializer{}

// Checker is implemented by records that can validate themselves.
type Checker interface {
	Check() error
}

// A SafeSerializer wraps a Serializer so that only valid records are written or read.
type SafeSerializer struct {
	Serializer
}

// WrapInSafeSerializer returns a SafeSerializer wrapping s, s is returned unchanged if already safe.
func WrapInSafeSerializer(s Serializer) SafeSerializer {
	if c, isSafe := s.(SafeSerializer); isSafe {
		return c
	}

	return SafeSerializer{Serializer: s}
}

// Marshal checks v if it is a Checker, then marshals it.
func (self SafeSerializer) Marshal(v any) ([]byte, error) {
	err := check(v)
	if nil != err {
		return nil, err
	}
	data, err := self.Serializer.Marshal(v)
	if nil != err {
		return nil, wrapError(SerializationError, "failed marshaling %T, got error %v", v, err)
	}

	return data, nil
}

// Unmarshal unmarshals data in v, then checks v if it is a Checker.
func (self SafeSerializer) Unmarshal(data []byte, v any) error {
	err := self.Serializer.Unmarshal(data, v)
	if nil != err {
		return wrapError(SerializationError, "failed unmarshaling %T, got error %v", v, err)
	}

	return check(v)
}

func check(v any) error {
	c, checkable := v.(Checker)
	if !checkable {
		return nil
	}
	err := c.Check()
	if nil != err {
		return wrapError(ValidationError, "invalid %T, Check returned %v", v, err)
	}
	return nil
}

var _ Serializer = SafeSerializer{}
