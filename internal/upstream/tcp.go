package upstream

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
)

// exchangeTCP opens one connection to endpoint (through the group's SOCKS5
// proxy if configured), writes the 2-byte-length-prefixed request, and reads
// the length-prefixed response, per RFC 1035 §4.2.2. useTLS wraps the
// connection in a TLS client handshake with SNI/hostname verification
// against endpoint.Host before the exchange.
func exchangeTCP(ctx context.Context, proxyCfg *ProxyConfig, endpoint Endpoint, req []byte, useTLS bool) ([]byte, error) {
	conn, err := dialTCPThroughProxy(ctx, proxyCfg, endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if useTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: endpoint.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("upstream: tls handshake with %s: %w", endpoint, err)
		}
		conn = tlsConn
	}

	if err := writeFramed(conn, req); err != nil {
		return nil, fmt.Errorf("upstream: write to %s: %w", endpoint, err)
	}
	resp, err := readFramed(conn)
	if err != nil {
		return nil, fmt.Errorf("upstream: read from %s: %w", endpoint, err)
	}
	return resp, nil
}

func writeFramed(w io.Writer, msg []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
