package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/neatsys-bench/neatcore/ingress"
)

// UDPTransport combines receive and send on a single net.UDPConn. Run
// reads on its own goroutine; Send writes on the caller's goroutine.
type UDPTransport struct {
	conn       *net.UDPConn
	bufferSize int
}

// NewUDPTransport binds a UDP socket on addr (host:port; empty host
// binds all interfaces).
func NewUDPTransport(addr string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve udp addr %q: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %q: %w", addr, err)
	}

	return &UDPTransport{conn: conn, bufferSize: 64 * 1024}, nil
}

// Run reads datagrams in a loop and pushes them into q until ctx is
// cancelled.
func (t *UDPTransport) Run(ctx context.Context, q *ingress.Queue) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = t.conn.Close()
		close(done)
	}()

	buf := make([]byte, t.bufferSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: udp read: %w", err)
		}

		item := ingress.Item{
			Source: from.String(),
			Bytes:  append([]byte(nil), buf[:n]...),
		}
		q.Push(item)
	}
}

// Send writes bytes as a single UDP datagram to addr.
func (t *UDPTransport) Send(addr string, bytes []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: resolve peer addr %q: %w", addr, err)
	}
	_, err = t.conn.WriteToUDP(bytes, raddr)
	if err != nil {
		return fmt.Errorf("transport: udp write to %q: %w", addr, err)
	}
	return nil
}

// LocalAddr returns the bound local address.
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Close closes the underlying socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
