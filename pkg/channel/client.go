package channel

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/url"

	"code.vaulink.org/golang/internal/observability"
)

const (
	// VAUPath is the gateway path below which envelopes are POSTed.
	VAUPath = "VAU"

	// AliasHeader is the outer response header that may carry the client alias.
	AliasHeader = "Userpseudonym"

	ContentType = "application/octet-stream"

	maxEnvelopeSize = 8 << 20
)

// Transport is an http.RoundTripper that sends requests to the gateway inside channel envelopes.
//
// The inner request is serialized in HTTP/1.1 wire form, wrapped and POSTed to <BaseURL>/VAU/<alias>.
type Transport struct {
	Channel *Channel
	BaseURL *url.URL

	// Next sends the outer requests, an observability.Transport is used if nil.
	Next http.RoundTripper
}

// NewTransport returns a Transport for the gateway at baseURL.
func NewTransport(ch *Channel, baseURL string, next http.RoundTripper) (*Transport, error) {
	if nil == ch {
		return nil, newError(ErrTransport, "missing Channel")
	}
	u, err := url.Parse(baseURL)
	if nil != err {
		return nil, wrapError(ErrTransport, err, "invalid gateway URL")
	}
	if ("http" != u.Scheme && "https" != u.Scheme) || "" == u.Host {
		return nil, newError(ErrTransport, "invalid gateway URL %q", baseURL)
	}
	return &Transport{Channel: ch, BaseURL: u, Next: next}, nil
}

// RoundTrip implements http.RoundTripper.
func (self *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := observability.GetObservability(ctx).Log()

	var inner bytes.Buffer
	err := req.Write(&inner)
	if nil != err {
		return nil, self.Channel.fail(ctx, wrapError(ErrTransport, err, "failed serializing inner request"))
	}

	env, err := self.Channel.WrapOutboundRequest(ctx, inner.Bytes())
	if nil != err {
		return nil, err
	}

	target := self.BaseURL.JoinPath(VAUPath, env.Alias)
	outer, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(env.Body))
	if nil != err {
		return nil, self.Channel.fail(ctx, wrapError(ErrTransport, err, "failed creating outer request"))
	}
	outer.Header.Set("Content-Type", ContentType)
	outer.Header.Set("Accept", ContentType)

	resp, err := self.next().RoundTrip(outer)
	if nil != err {
		return nil, self.Channel.fail(ctx, wrapError(ErrTransport, err, "failed POST %s", target))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	resp.Body.Close()
	if nil != err {
		return nil, self.Channel.fail(ctx, wrapError(ErrTransport, err, "failed reading response envelope"))
	}

	plain, err := self.Channel.UnwrapInboundResponse(ctx, env, resp.StatusCode, body, resp.Header.Get(AliasHeader))
	if nil != err {
		return nil, err
	}

	innerResp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(plain)), req)
	if nil != err {
		return nil, self.Channel.fail(ctx, wrapError(ErrEnvelope, err, "failed parsing inner response"))
	}
	log.Debug("channel round trip", "requestId", env.RequestID(), "status", innerResp.StatusCode)

	return innerResp, nil
}

func (self *Transport) next() http.RoundTripper {
	if nil == self.Next {
		return observability.Transport{}
	}
	return self.Next
}

var _ http.RoundTripper = &Transport{}
