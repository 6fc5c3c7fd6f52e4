package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/proxy"
)

const dnsMessageContentType = "application/dns-message"

// exchangeHTTPS POSTs req to https://<endpoint>/dns-query with
// Content-Type: application/dns-message, optionally tunneled through the
// group's SOCKS5 proxy, and returns the raw response body. A response whose
// Content-Type is not exactly application/dns-message is a transport error.
func exchangeHTTPS(ctx context.Context, client *http.Client, endpoint Endpoint, req []byte) ([]byte, error) {
	url := fmt.Sprintf("https://%s/dns-query", endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("upstream: build doh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", dnsMessageContentType)
	httpReq.Header.Set("Accept", dnsMessageContentType)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: doh request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != dnsMessageContentType {
		return nil, fmt.Errorf("%w: got %q from %s", ErrBadContentType, ct, endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 65535))
	if err != nil {
		return nil, fmt.Errorf("upstream: read doh body from %s: %w", endpoint, err)
	}
	return body, nil
}

// newHTTPSClient builds the http.Client used for a group's DoH transport,
// dialing through the group's SOCKS5 proxy when one is configured.
func newHTTPSClient(proxyCfg *ProxyConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil {
		dialer, err := socks5Dialer(proxyCfg)
		if err != nil {
			return nil, err
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	}
	return &http.Client{Transport: transport}, nil
}
