// Package listener implements the two inbound DNS surfaces: a plain UDP
// listener and a DoH HTTP handler, both handing raw request bytes to a
// Forwarder and writing back whatever it returns.
package listener

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/routewarden/routewarden/internal/pool"
	"github.com/routewarden/routewarden/internal/wire"
)

// Forwarder is the narrow interface both listeners depend on.
type Forwarder interface {
	Forward(ctx context.Context, reqBytes []byte) []byte
}

// DefaultUDPPort is the plain-UDP listener's default bind port.
const DefaultUDPPort = 5383

var bufferPool = pool.New(func() *[]byte {
	buf := make([]byte, wire.MaxIncomingDNSMessageSize)
	return &buf
})

// UDPListener binds a single UDP socket and dispatches each received
// datagram to its own goroutine, per spec's "never block on a slow forward"
// requirement — this is deliberately NOT the teacher's SO_REUSEPORT
// multi-socket, fixed-worker-pool model, since the contract here calls for
// exactly one bound socket.
type UDPListener struct {
	Logger    *slog.Logger
	Forwarder Forwarder

	conn *net.UDPConn
	wg   sync.WaitGroup
}

// ListenAndServe binds addr (host:port, e.g. ":5383") and serves until ctx
// is cancelled, then waits for in-flight goroutines to drain.
func (l *UDPListener) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		bufPtr := bufferPool.Get()
		n, peer, err := conn.ReadFromUDP(*bufPtr)
		if err != nil {
			bufferPool.Put(bufPtr)
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				if l.logger().Enabled(ctx, slog.LevelDebug) {
					l.logger().Debug("udp listener: read error", "error", err)
				}
				continue
			}
		}

		reqBytes := make([]byte, n)
		copy(reqBytes, (*bufPtr)[:n])
		bufferPool.Put(bufPtr)

		l.wg.Add(1)
		go l.handle(ctx, conn, peer, reqBytes)
	}
}

func (l *UDPListener) handle(ctx context.Context, conn *net.UDPConn, peer *net.UDPAddr, reqBytes []byte) {
	defer l.wg.Done()

	respBytes := l.Forwarder.Forward(ctx, reqBytes)
	if respBytes == nil {
		return
	}

	respBytes = truncateForPeer(reqBytes, respBytes)

	if _, err := conn.WriteToUDP(respBytes, peer); err != nil {
		l.logger().Warn("udp listener: send failed", "peer", peer.String(), "error", err)
	}
}

// truncateForPeer applies the UDP payload size limit the request's EDNS OPT
// (if any) requested, setting TC and dropping record sections if the full
// response would not fit in one datagram.
func truncateForPeer(reqBytes, respBytes []byte) []byte {
	req, err := wire.ParsePacket(reqBytes)
	if err != nil {
		return respBytes
	}
	maxSize := wire.ClientMaxUDPSize(req)

	resp, err := wire.ParsePacket(respBytes)
	if err != nil {
		return respBytes
	}
	questionOnly, err := wire.Packet{Header: resp.Header, Questions: resp.Questions}.Marshal()
	if err != nil {
		return respBytes
	}
	return wire.TruncateForUDP(respBytes, questionOnly, maxSize)
}

func (l *UDPListener) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
