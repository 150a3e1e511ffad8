package trust

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"code.vaulink.org/golang/internal/observability"
)

const (
	CertListPath = "CertList"
	OCSPListPath = "OCSPList"

	maxListSize = 4 << 20
)

// Fetcher retrieves the untrusted lists from the gateway.
type Fetcher interface {
	FetchCertList(ctx context.Context) ([]byte, error)
	FetchOCSPList(ctx context.Context) ([]byte, error)
}

// HTTPFetcher is a Fetcher that GETs the lists below BaseURL.
type HTTPFetcher struct {
	BaseURL *url.URL
	Client  *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher for the gateway at baseURL.
// It errors if baseURL is not an absolute http(s) URL.
func NewHTTPFetcher(baseURL string, client *http.Client) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if nil != err {
		return nil, wrapError(Error, err, "invalid gateway URL")
	}
	if ("http" != u.Scheme && "https" != u.Scheme) || "" == u.Host {
		return nil, newError(Error, "invalid gateway URL %q", baseURL)
	}
	if nil == client {
		client = &http.Client{Transport: observability.Transport{}}
	}
	return &HTTPFetcher{BaseURL: u, Client: client}, nil
}

// FetchCertList GETs the certificate list.
func (self *HTTPFetcher) FetchCertList(ctx context.Context) ([]byte, error) {
	return self.get(ctx, CertListPath)
}

// FetchOCSPList GETs the OCSP list.
func (self *HTTPFetcher) FetchOCSPList(ctx context.Context) ([]byte, error) {
	return self.get(ctx, OCSPListPath)
}

func (self *HTTPFetcher) get(ctx context.Context, name string) ([]byte, error) {
	log := observability.GetObservability(ctx).Log()
	target := self.BaseURL.JoinPath(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if nil != err {
		return nil, wrapError(ErrRemoteFetchFailed, err, "failed creating request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := self.Client.Do(req)
	if nil != err {
		return nil, wrapError(ErrRemoteFetchFailed, err, "failed GET %s", target)
	}
	defer resp.Body.Close()

	if http.StatusOK != resp.StatusCode {
		return nil, newError(ErrRemoteFetchFailed, "GET %s returned status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize+1))
	if nil != err {
		return nil, wrapError(ErrRemoteFetchFailed, err, "failed reading %s", name)
	}
	if len(body) > maxListSize {
		return nil, newError(ErrRemoteFetchFailed, "%s larger than %d bytes", name, maxListSize)
	}
	log.Debug("fetched trust list", "name", name, "size", len(body))

	return body, nil
}

var _ Fetcher = &HTTPFetcher{}
