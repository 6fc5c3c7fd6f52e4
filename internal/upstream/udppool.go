package upstream

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// udpRecvBufBytes is the SO_RCVBUF size applied to every pre-bound pooled
// socket so that a burst of upstream replies arriving while the pool is
// under load doesn't overflow the kernel socket buffer and get dropped.
const udpRecvBufBytes = 1 << 20 // 1 MiB

var udpListenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, udpRecvBufBytes)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// udpPoolSize is the bound on pre-bound sockets in a pool: 2500 sockets, all
// bound to the wildcard address (one pool, not one per address family), each
// leased under a best-effort lock-free scan.
const udpPoolSize = 2500

// udpSlot is one pooled, pre-bound UDP socket with an atomic in-use flag.
// The zero value of inUse (0) means free; CompareAndSwap(0,1) claims it.
type udpSlot struct {
	conn  *net.UDPConn
	inUse atomic.Int32
}

// udpSocketPool is a fixed-size array of pre-bound UDP sockets shared across
// all UDP-transport queries. Leasing never blocks: if every pooled socket is
// busy, lease allocates and returns a fresh ephemeral socket, which the
// caller closes itself instead of returning to the pool.
type udpSocketPool struct {
	slots         []*udpSlot
	excludedPorts map[int]bool
}

// newUDPSocketPool pre-binds up to udpPoolSize ephemeral UDP sockets,
// skipping any port named in excludedPorts. A bind failure for one port is
// skipped rather than fatal — exhausting the configured range under
// contention is expected and the pool degrades to fresh-socket allocation.
func newUDPSocketPool(excludedPorts []int) *udpSocketPool {
	excluded := make(map[int]bool, len(excludedPorts))
	for _, p := range excludedPorts {
		excluded[p] = true
	}
	pool := &udpSocketPool{excludedPorts: excluded}

	for i := 0; i < udpPoolSize; i++ {
		conn, err := bindExcludingPorts(excluded)
		if err != nil {
			continue
		}
		pool.slots = append(pool.slots, &udpSlot{conn: conn})
	}
	return pool
}

func bindExcludingPorts(excluded map[int]bool) (*net.UDPConn, error) {
	for attempt := 0; attempt < 8; attempt++ {
		pc, err := udpListenConfig.ListenPacket(context.Background(), "udp", ":0")
		if err != nil {
			return nil, err
		}
		conn := pc.(*net.UDPConn)
		if !excluded[conn.LocalAddr().(*net.UDPAddr).Port] {
			return conn, nil
		}
		conn.Close()
	}
	return nil, &net.AddrError{Err: "every bound port was in the exclusion list", Addr: ":0"}
}

// lease claims a pooled socket for isLoopback == false destinations, or
// allocates a fresh ephemeral socket for loopback destinations (which bypass
// the pool entirely) or when every pooled socket is already in use.
func (p *udpSocketPool) lease(isLoopback bool) (conn *net.UDPConn, pooled bool, err error) {
	if isLoopback {
		c, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		return c, false, err
	}
	for _, s := range p.slots {
		if s.inUse.CompareAndSwap(0, 1) {
			return s.conn, true, nil
		}
	}
	c, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	return c, false, err
}

// release returns a pooled socket (leased via lease with pooled == true) to
// the free state. A non-pooled (fresh ephemeral) socket is the caller's to
// close; release must not be called on it.
func (p *udpSocketPool) release(conn *net.UDPConn) {
	for _, s := range p.slots {
		if s.conn == conn {
			s.inUse.Store(0)
			return
		}
	}
}

