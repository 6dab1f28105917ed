package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neatsys-bench/neatcore/ingress"
)

// WSTransport is an alternate datagram Transport built on
// github.com/gorilla/websocket, for environments without raw UDP
// access (NAT-constrained benchmarking runners, browser-facing test
// harnesses). It runs an HTTP server accepting inbound connections
// (adapted from the teacher's WSServer upgrade pattern) and dials
// outbound connections lazily on first Send (adapted from the
// teacher's WSTransport client), caching them keyed by peer address.
type WSTransport struct {
	addr   string
	server *http.Server

	upgrader websocket.Upgrader
	dialer   websocket.Dialer

	mu    sync.Mutex
	peers map[string]*websocket.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWSTransport returns a WSTransport for addr ("host:port"). It does
// not bind anything; Run starts the HTTP listener on addr, which
// upgrades every request to a WebSocket connection.
func NewWSTransport(addr string) *WSTransport {
	t := &WSTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		dialer:       websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		peers:        make(map[string]*websocket.Conn),
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
	}
	return t
}

// Run starts the HTTP/WebSocket listener and blocks reading frames
// from every accepted connection, pushing each into q, until ctx is
// cancelled.
func (t *WSTransport) Run(ctx context.Context, q *ingress.Queue) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}
		t.serveConn(r.RemoteAddr, conn, q)
	})

	t.server = &http.Server{Addr: t.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("transport: websocket listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = t.server.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (t *WSTransport) serveConn(remote string, conn *websocket.Conn, q *ingress.Queue) {
	t.mu.Lock()
	t.peers[remote] = conn
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.peers, remote)
		t.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		q.Push(ingress.Item{Source: remote, Bytes: data})
	}
}

// Send writes bytes as a single binary WebSocket frame to addr,
// dialing and caching a connection on first use.
func (t *WSTransport) Send(addr string, bytes []byte) error {
	conn, err := t.connFor(addr)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, bytes); err != nil {
		t.mu.Lock()
		delete(t.peers, addr)
		t.mu.Unlock()
		return fmt.Errorf("transport: websocket write to %q: %w", addr, err)
	}
	return nil
}

func (t *WSTransport) connFor(addr string) (*websocket.Conn, error) {
	t.mu.Lock()
	conn, ok := t.peers[addr]
	t.mu.Unlock()
	if ok {
		return conn, nil
	}

	url := fmt.Sprintf("ws://%s/", addr)
	conn, _, err := t.dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket dial %q: %w", addr, err)
	}

	t.mu.Lock()
	t.peers[addr] = conn
	t.mu.Unlock()
	return conn, nil
}

// LocalAddr returns the configured listen address.
func (t *WSTransport) LocalAddr() string {
	return t.addr
}

// Close shuts down the listener and every cached peer connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	for addr, conn := range t.peers {
		_ = conn.Close()
		delete(t.peers, addr)
	}
	t.mu.Unlock()

	if t.server != nil {
		return t.server.Close()
	}
	return nil
}
