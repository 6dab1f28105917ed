// Package transport provides the concrete ingress/egress transports a
// Dispatch runs on: raw UDP and, as an alternate for environments
// without raw socket access, WebSocket. Both satisfy the same
// Transport interface so the dispatch runtime is transport-agnostic.
package transport

import (
	"context"

	"github.com/neatsys-bench/neatcore/ingress"
)

// Transport owns both the receive loop (pushing datagrams into a
// Queue) and the send path (egress) for one Dispatch. A single
// Transport combines rx and tx on one socket, but not on one goroutine:
// Run reads on its own goroutine, while Send writes synchronously on
// the caller's goroutine (the dispatch loop).
type Transport interface {
	// Run blocks, reading datagrams and pushing them into q, until ctx
	// is cancelled or an unrecoverable I/O error occurs.
	Run(ctx context.Context, q *ingress.Queue) error

	// Send writes bytes to addr. Safe to call concurrently with Run.
	Send(addr string, bytes []byte) error

	// LocalAddr returns the address this transport is bound to.
	LocalAddr() string

	// Close releases the transport's underlying socket(s).
	Close() error
}
