package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/routewarden/routewarden/internal/wire"
)

// Client resolves a request against one configured upstream group: fan-out
// across the group's endpoints on each attempt, retry on timeout or
// transport failure, and validate every candidate response before returning
// it. One Client is built per group and cached for the process lifetime.
type Client struct {
	group      Group
	udpPool    *udpSocketPool
	httpClient *http.Client
	retries    int
	timeout    time.Duration
}

// NewClient constructs the transport resources a group needs: a shared UDP
// socket pool for Udp groups, an http.Client (optionally proxy-aware) for
// Https groups. TCP/TLS groups dial per attempt and need no persistent state.
func NewClient(group Group, excludedUDPPorts []int) (*Client, error) {
	c := &Client{
		group:   group,
		retries: DefaultRetries,
	}

	switch group.Transport {
	case Udp:
		c.udpPool = newUDPSocketPool(excludedUDPPorts)
		c.timeout = DefaultUDPTimeout
	case Https:
		client, err := newHTTPSClient(group.Proxy)
		if err != nil {
			return nil, err
		}
		c.httpClient = client
		c.timeout = DefaultOtherTimeout
	case Tcp, Tls:
		c.timeout = DefaultOtherTimeout
	default:
		return nil, fmt.Errorf("upstream: group %q has unknown transport", group.Name)
	}
	return c, nil
}

// Resolve issues req (already re-encoded with the ID/question the client
// will validate against) to the group, fanning out to every endpoint in
// parallel on each attempt and returning the first validated response. It
// retries up to Client.retries additional times after a timeout or
// transport failure across all endpoints. Alongside the parsed packet it
// returns the verbatim bytes the upstream sent, so the caller can patch the
// 2-byte ID and pass the rest through untouched instead of re-encoding a
// response whose opaque RDATA (e.g. an NXDOMAIN authority-section SOA) may
// carry compression pointers a full re-marshal would not preserve.
func (c *Client) Resolve(ctx context.Context, req wire.Packet, reqBytes []byte) (wire.Packet, []byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		resp, raw, err := c.attempt(ctx, req, reqBytes)
		if err == nil {
			return resp, raw, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return wire.Packet{}, nil, ctx.Err()
		default:
		}
	}
	return wire.Packet{}, nil, fmt.Errorf("%w: %v", ErrAllAttemptsFailed, lastErr)
}

// attempt fans req out to every endpoint in the group in parallel, under a
// single per-attempt deadline, and returns the first endpoint's response
// that passes validation. Stragglers are left to be cancelled by the
// attempt's context when it returns.
func (c *Client) attempt(ctx context.Context, req wire.Packet, reqBytes []byte) (wire.Packet, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		packet wire.Packet
		raw    []byte
		err    error
	}
	results := make(chan result, len(c.group.Endpoints))

	for _, ep := range c.group.Endpoints {
		ep := ep
		go func() {
			raw, err := c.exchangeOne(attemptCtx, ep, reqBytes)
			if err != nil {
				results <- result{err: err}
				return
			}
			resp, err := wire.ParsePacket(raw)
			if err != nil {
				results <- result{err: fmt.Errorf("upstream: parse response from %s: %w", ep, err)}
				return
			}
			if err := validateResponse(req, resp); err != nil {
				results <- result{err: err}
				return
			}
			results <- result{packet: resp, raw: raw}
		}()
	}

	var lastErr error
	for i := 0; i < len(c.group.Endpoints); i++ {
		select {
		case r := <-results:
			if r.err == nil {
				return r.packet, r.raw, nil
			}
			lastErr = r.err
		case <-attemptCtx.Done():
			return wire.Packet{}, nil, attemptCtx.Err()
		}
	}
	if lastErr == nil {
		lastErr = ErrAllAttemptsFailed
	}
	return wire.Packet{}, nil, lastErr
}

func (c *Client) exchangeOne(ctx context.Context, ep Endpoint, reqBytes []byte) ([]byte, error) {
	switch c.group.Transport {
	case Udp:
		if c.group.Proxy != nil {
			return exchangeUDPViaSocks5(ctx, c.group.Proxy, ep, reqBytes)
		}
		return exchangeUDP(ctx, c.udpPool, ep, reqBytes)
	case Tcp:
		return exchangeTCP(ctx, c.group.Proxy, ep, reqBytes, false)
	case Tls:
		return exchangeTCP(ctx, c.group.Proxy, ep, reqBytes, true)
	case Https:
		return exchangeHTTPS(ctx, c.httpClient, ep, reqBytes)
	default:
		return nil, fmt.Errorf("upstream: group %q has unknown transport", c.group.Name)
	}
}

// SetRetryPolicyForTest overrides the retry count and per-attempt timeout;
// exported only for tests that need to shrink the contracted defaults
// (5 retries, 2s/10s per attempt) down to something fast to run.
func (c *Client) SetRetryPolicyForTest(retries int, timeout time.Duration) {
	c.retries = retries
	c.timeout = timeout
}

// Close releases any long-lived transport resources the client holds (the
// UDP socket pool's bound sockets).
func (c *Client) Close() error {
	if c.udpPool == nil {
		return nil
	}
	for _, s := range c.udpPool.slots {
		_ = s.conn.Close()
	}
	return nil
}
