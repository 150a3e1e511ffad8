package trust

import (
	"crypto/x509"
	"encoding/json"
)

// CertList is the untrusted certificate list published by the gateway.
//
// Its wire format is a JSON object whose members hold base64 DER certificates.
type CertList struct {
	// AddRoots are cross signed root certificates that chain from the trust anchor.
	AddRoots [][]byte `json:"add_roots"`

	// CACerts are component CA certificates.
	CACerts [][]byte `json:"ca_certs"`

	// EECerts are end entity certificates.
	EECerts [][]byte `json:"ee_certs"`
}

// ParseCertList decodes the wire form of a CertList.
func ParseCertList(data []byte) (*CertList, error) {
	var rv CertList
	err := json.Unmarshal(data, &rv)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "failed decoding certificate list")
	}
	return &rv, nil
}

// Marshal returns the wire form of the CertList.
func (self *CertList) Marshal() ([]byte, error) {
	srz, err := json.Marshal(self)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "failed encoding certificate list")
	}
	return srz, nil
}

type parsedCertList struct {
	roots []*x509.Certificate
	cas   []*x509.Certificate
	ees   []*x509.Certificate
}

func (self *CertList) parse() (*parsedCertList, error) {
	var rv parsedCertList
	var err error
	rv.roots, err = parseCertificates(self.AddRoots)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "invalid add_roots")
	}
	rv.cas, err = parseCertificates(self.CACerts)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "invalid ca_certs")
	}
	rv.ees, err = parseCertificates(self.EECerts)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "invalid ee_certs")
	}
	return &rv, nil
}

func parseCertificates(ders [][]byte) ([]*x509.Certificate, error) {
	rv := make([]*x509.Certificate, 0, len(ders))
	for pos, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if nil != err {
			return nil, wrapError(ErrMalformed, err, "failed parsing certificate #%d", pos)
		}
		rv = append(rv, cert)
	}
	return rv, nil
}

// OCSPList is the untrusted list of OCSP responses published by the gateway.
type OCSPList struct {
	Responses [][]byte `json:"OCSP Responses"`
}

// ParseOCSPList decodes the wire form of an OCSPList.
func ParseOCSPList(data []byte) (*OCSPList, error) {
	var rv OCSPList
	err := json.Unmarshal(data, &rv)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "failed decoding OCSP list")
	}
	return &rv, nil
}

// Marshal returns the wire form of the OCSPList.
func (self *OCSPList) Marshal() ([]byte, error) {
	srz, err := json.Marshal(self)
	if nil != err {
		return nil, wrapError(ErrMalformed, err, "failed encoding OCSP list")
	}
	return srz, nil
}
