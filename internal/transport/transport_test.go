package transport

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"slices"
	"testing"
	"time"
)

type Dummy struct {
	X       int    `cbor:"1,keyasint,omitzero"`
	Name    string `cbor:"2,keyasint,omitempty"`
	Payload []byte `cbor:"3,keyasint,omitempty"`
}

func (self Dummy) Check() error {
	if "" == self.Name {
		return newError("missing Name")
	}
	return nil
}

func TestRWTransportLoopback(t *testing.T) {
	buf := new(bytes.Buffer)
	tr := RWTransport{R: buf, W: buf}

	msgs := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{0xA5}, 0xFFFF)}
	for i, msg := range msgs {
		err := tr.WriteBytes(msg)
		if nil != err {
			t.Fatalf("#%d: failed WriteBytes, got error %v", i, err)
		}
	}
	for i, msg := range msgs {
		rmsg, err := tr.ReadBytes()
		if nil != err {
			t.Fatalf("#%d: failed ReadBytes, got error %v", i, err)
		}
		if !slices.Equal(rmsg, msg) {
			t.Errorf("#%d: failed rmsg control", i)
		}
	}
	_, err := tr.ReadBytes()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRWTransportTooLarge(t *testing.T) {
	buf := new(bytes.Buffer)
	tr := RWTransport{R: buf, W: buf}
	err := tr.WriteBytes(make([]byte, 0x10000))
	if nil == err {
		t.Fatal("WriteBytes accepted a message larger than 0xFFFF")
	}
}

func TestExchange(t *testing.T) {
	tr := NewFuncTransport(func(msg []byte) ([]byte, error) {
		return append(slices.Clone(msg), 0x90, 0x00), nil
	})
	rmsg, err := Exchange(tr, []byte{0x00, 0xA4})
	if nil != err {
		t.Fatalf("failed Exchange, got error %v", err)
	}
	if !slices.Equal(rmsg, []byte{0x00, 0xA4, 0x90, 0x00}) {
		t.Errorf("unexpected response % X", rmsg)
	}
	_, err = tr.ReadBytes()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestSafeSerializer(t *testing.T) {
	s := CBORSerializer{}
	ss := WrapInSafeSerializer(s)
	if ss != WrapInSafeSerializer(ss) {
		t.Error("WrapInSafeSerializer wrapped a SafeSerializer")
	}

	msg := Dummy{X: 10, Name: "Hope", Payload: []byte{1, 2, 3}}
	srz, err := ss.Marshal(msg)
	if nil != err {
		t.Fatalf("failed Marshal, got error %v", err)
	}
	var dst Dummy
	err = ss.Unmarshal(srz, &dst)
	if nil != err {
		t.Fatalf("failed Unmarshal, got error %v", err)
	}
	if !reflect.DeepEqual(msg, dst) {
		t.Errorf("failed round trip, %+v != %+v", dst, msg)
	}

	_, err = ss.Marshal(Dummy{X: 1})
	if !errors.Is(err, ValidationError) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	srz, _ = s.Marshal(Dummy{X: 1})
	err = ss.Unmarshal(srz, &dst)
	if !errors.Is(err, ValidationError) {
		t.Errorf("expected ValidationError on Unmarshal, got %v", err)
	}

	err = ss.Unmarshal([]byte{0xFF}, &dst)
	if !errors.Is(err, SerializationError) {
		t.Errorf("expected SerializationError, got %v", err)
	}
}

func TestCBORSerializerRules(t *testing.T) {
	s := CBORSerializer{}

	// map {2: "b", 1: 10} encodes with sorted keys
	srz, err := s.Marshal(map[int]any{2: "b", 1: 10})
	if nil != err {
		t.Fatalf("failed Marshal, got error %v", err)
	}
	if !slices.Equal([]byte{0xA2, 0x01, 0x0A, 0x02, 0x61, 'b'}, srz) {
		t.Errorf("non deterministic encoding, got % X", srz)
	}

	// map {1: 1, 1: 2}
	var dst map[int]int
	err = s.Unmarshal([]byte{0xA2, 0x01, 0x01, 0x01, 0x02}, &dst)
	if nil == err {
		t.Errorf("duplicated key accepted, got %v", dst)
	}

	now := time.Now()
	srz, err = s.Marshal(now)
	if nil != err {
		t.Fatalf("failed Marshal, got error %v", err)
	}
	var decoded time.Time
	err = s.Unmarshal(srz, &decoded)
	if nil != err || !now.Equal(decoded) {
		t.Errorf("failed time round trip, got %v error %v", decoded, err)
	}
}
