package transcriber

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// NetworkMetrics breaks down where one request spent its time. Most of
// the perceived latency on a cold connection is DNS+TCP+TLS, which is
// exactly what the warmer exists to hide.
type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

type TracedClient struct {
	client *http.Client
}

func NewTracedClient() *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

func newTrace(metrics *NetworkMetrics) *httptrace.ClientTrace {
	var getConnStart, dnsStart, tcpStart, tlsStart time.Time
	var gotConn, wroteHeaders, wroteRequest time.Time

	return &httptrace.ClientTrace{
		GetConn: func(_ string) { getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			gotConn = time.Now()
			metrics.ConnWait = gotConn.Sub(getConnStart)
			metrics.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { metrics.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { metrics.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			metrics.TLS = time.Since(tlsStart)
			metrics.TLSProtocol = tls.VersionName(state.Version)
		},
		WroteHeaders: func() {
			wroteHeaders = time.Now()
			metrics.ReqHeaders = wroteHeaders.Sub(gotConn)
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
			metrics.ReqBody = wroteRequest.Sub(wroteHeaders)
		},
		GotFirstResponseByte: func() {
			metrics.TTFB = time.Since(wroteRequest)
		},
	}
}

// Do issues the request and buffers the whole response body.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	metrics := &NetworkMetrics{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), newTrace(metrics)))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	firstByte := time.Now()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	metrics.Download = time.Since(firstByte)
	metrics.Total = time.Since(reqStart)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    metrics,
	}, nil
}

// DoStream issues the request and hands back the open response so the
// caller can consume a line-delimited stream. Metrics cover everything
// up to the first response byte; the caller owns closing the body.
func (c *TracedClient) DoStream(req *http.Request) (*http.Response, *NetworkMetrics, error) {
	metrics := &NetworkMetrics{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), newTrace(metrics)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, metrics, err
	}
	return resp, metrics, nil
}
