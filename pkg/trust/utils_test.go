package trust

import (
	"context"
	"sync"
	"testing"

	"code.vaulink.org/golang/internal/testpki"
)

func newTestPKI(t *testing.T) *testpki.PKI {
	pki, err := testpki.New(testpki.Options{})
	if nil != err {
		t.Fatalf("Failed generating test PKI, got error %v", err)
	}
	return pki
}

func testCertList(pki *testpki.PKI) *CertList {
	return &CertList{
		AddRoots: pki.AddRoots(),
		CACerts:  pki.CACerts(),
		EECerts:  pki.EECerts(),
	}
}

func testGoodOCSPList(t *testing.T, pki *testpki.PKI) *OCSPList {
	responses, err := pki.GoodResponses()
	if nil != err {
		t.Fatalf("Failed generating OCSP responses, got error %v", err)
	}
	return &OCSPList{Responses: responses}
}

func testResponse(t *testing.T, pki *testpki.PKI, subject *testpki.Entity, opts testpki.ResponseOptions) []byte {
	der, err := pki.Response(subject, opts)
	if nil != err {
		t.Fatalf("Failed generating OCSP response, got error %v", err)
	}
	return der
}

func testPolicy() Policy {
	policy := DefaultPolicy()
	policy.MinIdpCerts = 1
	return policy
}

// testFetcher serves lists generated by its list functions and counts its calls.
type testFetcher struct {
	mut       sync.Mutex
	certCalls int
	ocspCalls int
	gate      chan struct{} // if not nil, FetchCertList waits until gate is closed
	certs     func() ([]byte, error)
	ocsp      func() ([]byte, error)
}

func newTestFetcher(t *testing.T, pki *testpki.PKI) *testFetcher {
	return &testFetcher{
		certs: func() ([]byte, error) {
			return testCertList(pki).Marshal()
		},
		ocsp: func() ([]byte, error) {
			responses, err := pki.GoodResponses()
			if nil != err {
				t.Errorf("Failed generating OCSP responses, got error %v", err)
				return nil, err
			}
			return (&OCSPList{Responses: responses}).Marshal()
		},
	}
}

func (self *testFetcher) FetchCertList(ctx context.Context) ([]byte, error) {
	self.mut.Lock()
	self.certCalls += 1
	gate := self.gate
	self.mut.Unlock()

	if nil != gate {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return self.certs()
}

func (self *testFetcher) FetchOCSPList(_ context.Context) ([]byte, error) {
	self.mut.Lock()
	self.ocspCalls += 1
	self.mut.Unlock()

	return self.ocsp()
}

func (self *testFetcher) calls() int {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.certCalls
}

var _ Fetcher = &testFetcher{}
