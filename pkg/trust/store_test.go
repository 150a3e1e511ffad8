package trust

import (
	"crypto/x509"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

func TestTrustedStoreExpiry(t *testing.T) {
	pki := newTestPKI(t)
	t0 := pki.Now()

	store := &TrustedStore{
		chain:       []*x509.Certificate{pki.Anchor.Cert, pki.CA.Cert, pki.Leaf.Cert},
		leaf:        pki.Leaf.Cert,
		evidence:    []Evidence{{Certificate: pki.Leaf.Cert, Response: &ocsp.Response{ProducedAt: t0}}},
		validatedAt: t0,
		maxAge:      12 * time.Hour,
	}

	testcases := []struct {
		offset time.Duration
		stale  bool
	}{
		{offset: 0, stale: false},
		{offset: 11*time.Hour + 59*time.Minute, stale: false},
		{offset: 12 * time.Hour, stale: true},
		{offset: 12*time.Hour + time.Minute, stale: true},
	}
	for _, tc := range testcases {
		if stale := store.IsStale(t0.Add(tc.offset)); tc.stale != stale {
			t.Errorf("failed IsStale control at t0 + %v, got %v", tc.offset, stale)
		}
	}
}

func TestTrustedStoreExpiresAt(t *testing.T) {
	pki := newTestPKI(t)
	t0 := pki.Now()
	old := t0.Add(-2 * time.Hour)

	store := &TrustedStore{
		chain:       []*x509.Certificate{pki.Anchor.Cert, pki.CA.Cert, pki.Leaf.Cert},
		leaf:        pki.Leaf.Cert,
		evidence:    []Evidence{{Certificate: pki.CA.Cert, Response: &ocsp.Response{ProducedAt: old}}},
		validatedAt: t0,
		maxAge:      12 * time.Hour,
	}
	if expected := old.Add(12 * time.Hour); !store.ExpiresAt().Equal(expected) {
		t.Errorf("failed evidence bound control, got %v != %v", store.ExpiresAt(), expected)
	}

	store.maxAge = 10 * 365 * 24 * time.Hour
	store.evidence = nil
	if expected := pki.Anchor.Cert.NotAfter; !store.ExpiresAt().Equal(expected) {
		t.Errorf("failed certificate bound control, got %v != %v", store.ExpiresAt(), expected)
	}
}
