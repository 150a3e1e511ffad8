package session

import (
	"errors"
	"testing"
	"testing/synctest"
	"time"
)

func TestPseudonymFactoryNew(t *testing.T) {
	_, err := NewPseudonymFactory(-10 * time.Second)
	if nil == err {
		t.Error("Could construct PseudonymFactory with lifetime < 0")
	}
	_, err = NewPseudonymFactory(0)
	if nil == err {
		t.Error("Could construct PseudonymFactory with 0 lifetime")
	}
	_, err = NewPseudonymFactory(4 * time.Nanosecond)
	if nil == err {
		t.Error("Could construct PseudonymFactory with lifetime < numSlot")
	}
	pf, err := NewPseudonymFactory(numSlot * time.Nanosecond)
	if nil != err {
		t.Errorf("Failed NewPseudonymFactory, got error %v", err)
	}
	if nil == pf {
		t.Error("Got nil *PseudonymFactory")
	}
}

func TestPseudonymExpires(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		lifetime := 32 * time.Second
		pf, err := NewPseudonymFactory(lifetime)
		if nil != err {
			t.Fatalf("Failed NewPseudonymFactory, got error %v", err)
		}

		time.Sleep(8500 * time.Hour)
		p := pf.New()
		t.Logf("p -> %s", p)
		if expires := pf.Expires(p); !time.Now().Add(lifetime).Equal(expires) {
			t.Errorf("failed Expires control, got %v", expires)
		}

		time.Sleep(lifetime - 1*time.Nanosecond)
		err = pf.Check(p)
		if nil != err {
			t.Fatalf("Failed validating p, got error:\n%v", err)
		}

		time.Sleep(2 * time.Nanosecond)
		err = pf.Check(p)
		if !errors.Is(err, ErrKeyExpired) {
			t.Fatalf("Failed to detect p expiration, got error:%v", err)
		}
	})
}

func TestPseudonymTamper(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		pf, err := NewPseudonymFactory(48 * time.Second)
		if nil != err {
			t.Fatalf("Failed NewPseudonymFactory, got error %v", err)
		}
		time.Sleep(22 * time.Hour)
		p := pf.New()
		time.Sleep(36 * time.Second)
		err = pf.Check(p)
		if nil != err {
			t.Fatalf("p found invalid after 36s, got error %v", err)
		}

		p[10] += 1
		err = pf.Check(p)
		if !errors.Is(err, ErrKeyTampered) {
			t.Fatalf("Failed to detect tampered p, got error:%v", err)
		}
	})
}

func TestPseudonymParse(t *testing.T) {
	pf, err := NewPseudonymFactory(time.Minute)
	if nil != err {
		t.Fatalf("Failed NewPseudonymFactory, got error %v", err)
	}
	p := pf.New()
	parsed, err := ParsePseudonym(p.String())
	if nil != err {
		t.Fatalf("Failed ParsePseudonym, got error %v", err)
	}
	if parsed != p {
		t.Errorf("failed ParsePseudonym control, %s != %s", parsed, p)
	}
	for _, bad := range []string{"0", "", p.String()[:62] + "zz"} {
		_, err = ParsePseudonym(bad)
		if nil == err {
			t.Errorf("ParsePseudonym accepted %q", bad)
		}
	}
}
