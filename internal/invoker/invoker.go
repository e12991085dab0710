// Package invoker executes the outbound REST call for one operation mapping.
package invoker

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/softslim/soapbridge/internal/errors"
)

// Response is a successful (2xx) backend response.
type Response struct {
	Status      int
	Header      http.Header
	Body        []byte
	ContentType string
}

// Invoker performs HTTP calls against one backend with a fixed timeout and
// an optional mutual-TLS identity. One Invoker is compiled per operation
// mapping; connect and read timeouts both equal the mapping's timeout.
type Invoker struct {
	client *http.Client

	totalCalls  atomic.Int64
	totalErrors atomic.Int64
}

// New creates an Invoker. tlsCfg may be nil for plain HTTPS/HTTP backends.
func New(tlsCfg *tls.Config, timeout time.Duration) *Invoker {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: timeout,
		TLSClientConfig:     tlsCfg,
		ForceAttemptHTTP2:   true,
	}
	return &Invoker{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Invoke performs one HTTP call. A non-2xx response becomes a backend
// invocation error carrying the payload and content type unchanged; a
// transport failure becomes an invocation error with status 0.
func (iv *Invoker) Invoke(ctx context.Context, method, targetURL string, headers map[string]string, body []byte) (*Response, error) {
	iv.totalCalls.Add(1)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, reader)
	if err != nil {
		iv.totalErrors.Add(1)
		return nil, errors.Configurationf("invalid target URL %q", targetURL).Wrap(err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := iv.client.Do(req)
	if err != nil {
		iv.totalErrors.Add(1)
		return nil, errors.Transport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		iv.totalErrors.Add(1)
		return nil, errors.Transport(err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		iv.totalErrors.Add(1)
		return nil, errors.Backend(resp.StatusCode, string(respBody), contentType)
	}

	return &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        respBody,
		ContentType: contentType,
	}, nil
}

// Stats returns call counters.
func (iv *Invoker) Stats() map[string]any {
	return map[string]any{
		"total_calls":  iv.totalCalls.Load(),
		"total_errors": iv.totalErrors.Load(),
	}
}
