package upstream

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// socks5Dialer builds a context-aware dialer for TCP-family transports
// (TCP, TLS, and the HTTPS client's underlying connections) that routes
// through the group's proxy via SOCKS5 CONNECT, using USERNAME/PASSWORD
// auth when credentials are configured and NO-AUTH otherwise.
func socks5Dialer(p *ProxyConfig) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if p.HasAuth() {
		auth = &proxy.Auth{User: p.Username, Password: p.Password}
	}
	addr := fmt.Sprintf("%s:%d", p.Address, p.Port)
	d, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	return d, nil
}

// dialTCPThroughProxy dials endpoint over the group's SOCKS5 proxy if one is
// configured, or directly otherwise. socks5Dialer returns the plain
// proxy.Dialer interface, whose Dial takes no context, so a direct dial
// honors ctx via net.Dialer while a proxied dial races the blocking Dial call
// against ctx.Done().
func dialTCPThroughProxy(ctx context.Context, proxyCfg *ProxyConfig, endpoint Endpoint) (net.Conn, error) {
	addr := endpoint.String()
	if proxyCfg == nil {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}

	dialer, err := socks5Dialer(proxyCfg)
	if err != nil {
		return nil, err
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := dialer.Dial("tcp", addr)
		ch <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProxyConnect, r.err)
		}
		return r.conn, nil
	}
}

// udpAssociate performs a SOCKS5 UDP ASSOCIATE handshake (RFC 1928 §4,
// command 0x03) over a fresh TCP control connection and returns the relay
// address the proxy allocated, plus the control connection, which must stay
// open for the lifetime of the UDP association.
func udpAssociate(ctx context.Context, proxyCfg *ProxyConfig) (control net.Conn, relay *net.UDPAddr, err error) {
	addr := fmt.Sprintf("%s:%d", proxyCfg.Address, proxyCfg.Port)
	var d net.Dialer
	control, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	defer func() {
		if err != nil {
			control.Close()
		}
	}()

	if err = socks5Handshake(control, proxyCfg); err != nil {
		return nil, nil, err
	}

	// UDP ASSOCIATE request: VER=5, CMD=3, RSV=0, ATYP=1 (IPv4), wildcard addr:port.
	req := []byte{0x05, 0x03, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if _, err = control.Write(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}

	reply := make([]byte, 10)
	if _, err = readFull(control, reply); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	if reply[1] != 0x00 {
		return nil, nil, fmt.Errorf("%w: socks5 UDP ASSOCIATE rejected, code %d", ErrProxyConnect, reply[1])
	}

	ip := net.IP(reply[4:8])
	port := int(reply[8])<<8 | int(reply[9])
	relay = &net.UDPAddr{IP: ip, Port: port}
	if relay.IP.IsUnspecified() {
		relay.IP = net.ParseIP(proxyCfg.Address)
	}
	return control, relay, nil
}

// socks5Handshake performs the method-negotiation and optional
// USERNAME/PASSWORD sub-negotiation (RFC 1929) on an already-open TCP
// connection to a SOCKS5 proxy.
func socks5Handshake(conn net.Conn, p *ProxyConfig) error {
	methods := []byte{0x00} // NO-AUTH
	if p.HasAuth() {
		methods = []byte{0x02} // USERNAME/PASSWORD
	}
	greeting := append([]byte{0x05, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}

	resp := make([]byte, 2)
	if _, err := readFull(conn, resp); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	if resp[0] != 0x05 {
		return fmt.Errorf("%w: not a socks5 server", ErrProxyConnect)
	}

	switch resp[1] {
	case 0x00:
		return nil
	case 0x02:
		return socks5Authenticate(conn, p)
	default:
		return fmt.Errorf("%w: no acceptable auth method", ErrProxyConnect)
	}
}

func socks5Authenticate(conn net.Conn, p *ProxyConfig) error {
	req := []byte{0x01, byte(len(p.Username))}
	req = append(req, p.Username...)
	req = append(req, byte(len(p.Password)))
	req = append(req, p.Password...)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	resp := make([]byte, 2)
	if _, err := readFull(conn, resp); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyConnect, err)
	}
	if resp[1] != 0x00 {
		return fmt.Errorf("%w: socks5 auth rejected", ErrProxyConnect)
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
