package upstream

import (
	"context"
	"fmt"
	"net"
)

// exchangeUDP sends req to endpoint over a pooled (or, for loopback
// destinations, freshly allocated) UDP socket and waits for one datagram in
// reply, honoring ctx's deadline. The per-attempt timeout is applied by the
// caller via ctx; this function itself never blocks past it.
func exchangeUDP(ctx context.Context, pool *udpSocketPool, endpoint Endpoint, req []byte) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp", endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("upstream: resolve %s: %w", endpoint, err)
	}

	conn, pooled, err := pool.lease(raddr.IP.IsLoopback())
	if err != nil {
		return nil, fmt.Errorf("upstream: udp socket lease: %w", err)
	}
	if pooled {
		defer pool.release(conn)
	} else {
		defer conn.Close()
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.WriteToUDP(req, raddr); err != nil {
		return nil, fmt.Errorf("upstream: udp write to %s: %w", endpoint, err)
	}

	buf := make([]byte, 4096)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("upstream: udp read from %s: %w", endpoint, err)
		}
		// A pooled socket may still have a stale datagram in flight from a
		// prior lease; only accept replies from the endpoint we queried.
		if !from.IP.Equal(raddr.IP) || from.Port != raddr.Port {
			continue
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// exchangeUDPViaSocks5 routes a UDP query through a SOCKS5 UDP ASSOCIATE
// relay (RFC 1928 §7): it opens a control connection to obtain the relay
// address, wraps req in the relay's datagram header, and unwraps the reply.
// The control connection must stay open for the relay to remain valid.
func exchangeUDPViaSocks5(ctx context.Context, proxyCfg *ProxyConfig, endpoint Endpoint, req []byte) ([]byte, error) {
	control, relay, err := udpAssociate(ctx, proxyCfg)
	if err != nil {
		return nil, err
	}
	defer control.Close()

	raddr, err := net.ResolveUDPAddr("udp", endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("upstream: resolve %s: %w", endpoint, err)
	}

	conn, err := net.DialUDP("udp", nil, relay)
	if err != nil {
		return nil, fmt.Errorf("%w: dial relay: %v", ErrProxyConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	framed := wrapSocks5UDP(raddr, req)
	if _, err := conn.Write(framed); err != nil {
		return nil, fmt.Errorf("upstream: socks5 udp write to %s: %w", endpoint, err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("upstream: socks5 udp read from %s: %w", endpoint, err)
	}
	return unwrapSocks5UDP(buf[:n])
}

// wrapSocks5UDP prepends the RFC 1928 §7 UDP relay header (RSV RSV FRAG ATYP
// DST.ADDR DST.PORT) to a datagram bound for dst via the relay.
func wrapSocks5UDP(dst *net.UDPAddr, payload []byte) []byte {
	ip4 := dst.IP.To4()
	var atyp byte = 0x01
	addr := ip4
	if addr == nil {
		atyp = 0x04
		addr = dst.IP.To16()
	}
	out := make([]byte, 0, 4+len(addr)+2+len(payload))
	out = append(out, 0x00, 0x00, 0x00, atyp)
	out = append(out, addr...)
	out = append(out, byte(dst.Port>>8), byte(dst.Port))
	out = append(out, payload...)
	return out
}

// unwrapSocks5UDP strips the RFC 1928 §7 UDP relay header from a datagram
// received over the relay.
func unwrapSocks5UDP(datagram []byte) ([]byte, error) {
	if len(datagram) < 4 {
		return nil, fmt.Errorf("upstream: truncated socks5 udp datagram")
	}
	atyp := datagram[3]
	off := 4
	switch atyp {
	case 0x01:
		off += 4
	case 0x04:
		off += 16
	case 0x03:
		if len(datagram) < off+1 {
			return nil, fmt.Errorf("upstream: truncated socks5 udp domain datagram")
		}
		off += 1 + int(datagram[off])
	default:
		return nil, fmt.Errorf("upstream: unknown socks5 udp ATYP %d", atyp)
	}
	off += 2 // DST.PORT
	if len(datagram) < off {
		return nil, fmt.Errorf("upstream: truncated socks5 udp datagram")
	}
	return datagram[off:], nil
}
