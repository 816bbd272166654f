// Package tcpproxy provides a small TCP relay for tests that need to sever
// and restore a live connection between a client and a server.
package tcpproxy

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Proxy relays TCP traffic between LocalAddr and RemoteAddr and counts the
// bytes flowing in each direction. Start blocks in the accept loop, run it
// in a goroutine. Stop closes the listener and every relayed connection.
type Proxy struct {
	LocalAddr     string
	RemoteAddr    string
	BytesSent     atomic.Int64
	BytesReceived atomic.Int64

	wg   sync.WaitGroup
	stop chan struct{}

	connsMu sync.Mutex
	conns   []net.Conn
}

func (p *Proxy) Start(t testing.TB) {
	listener, err := net.Listen("tcp", p.LocalAddr)
	require.NoError(t, err)

	p.stop = make(chan struct{})
	p.wg.Add(1)
	go func() {
		<-p.stop
		_ = listener.Close()
		p.wg.Done()
	}()

	for {
		client, err := listener.Accept()
		if err != nil {
			select {
			case <-p.stop:
				return
			default:
				continue
			}
		}

		server, err := net.Dial("tcp", p.RemoteAddr)
		if err != nil {
			_ = client.Close() // remote gone, drop the client and keep listening
			continue
		}
		p.track(client, server)

		p.wg.Add(2)
		go p.relay(server, client, &p.BytesReceived)
		go p.relay(client, server, &p.BytesSent)
	}
}

// Stop severs every open connection and ends the accept loop.
func (p *Proxy) Stop() {
	close(p.stop)
	p.connsMu.Lock()
	for _, conn := range p.conns {
		_ = conn.Close()
	}
	p.conns = nil
	p.connsMu.Unlock()
	p.wg.Wait()
}

func (p *Proxy) track(conns ...net.Conn) {
	p.connsMu.Lock()
	p.conns = append(p.conns, conns...)
	p.connsMu.Unlock()
}

// relay copies src into dst until either side closes, then closes both so
// the opposite relay unblocks too.
func (p *Proxy) relay(dst, src net.Conn, counter *atomic.Int64) {
	defer p.wg.Done()
	n, _ := io.Copy(dst, src)
	counter.Add(n)
	_ = dst.Close()
	_ = src.Close()
}
