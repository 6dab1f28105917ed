package echo

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/neatsys-bench/neatcore/internal/cryptoinit"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/ingress"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/runtime"
)

// memoryBus routes Send calls directly into the addressed participant's
// ingress Queue, standing in for a real socket in tests.
type memoryBus struct {
	mu     sync.Mutex
	queues map[string]*ingress.Queue
}

func newMemoryBus() *memoryBus {
	return &memoryBus{queues: make(map[string]*ingress.Queue)}
}

func (b *memoryBus) register(addr string, q *ingress.Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[addr] = q
}

// endpoint is one participant's view of the bus: it satisfies
// transport.Transport.
type endpoint struct {
	bus  *memoryBus
	addr string
	q    *ingress.Queue
}

func (b *memoryBus) endpoint(addr string) *endpoint {
	ep := &endpoint{bus: b, addr: addr}
	return ep
}

func (e *endpoint) Run(ctx context.Context, q *ingress.Queue) error {
	e.q = q
	e.bus.register(e.addr, q)
	<-ctx.Done()
	return ctx.Err()
}

func (e *endpoint) Send(addr string, bytes []byte) error {
	e.bus.mu.Lock()
	dest, ok := e.bus.queues[addr]
	e.bus.mu.Unlock()
	if !ok {
		return nil
	}
	dest.Push(ingress.Item{Source: e.addr, Bytes: bytes})
	return nil
}

func (e *endpoint) LocalAddr() string { return e.addr }
func (e *endpoint) Close() error      { return nil }

type harness struct {
	bus       *memoryBus
	tables    map[identity.Index]*identity.Table
	keys      map[identity.Index]corecrypto.KeyPair
	receivers map[identity.Index]*Receiver
	dispatch  map[identity.Index]*runtime.Dispatch
}

func addrFor(idx identity.Index) string {
	return string(rune('A' + int(idx)))
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	mgr := corecrypto.NewManager()

	members := make([]identity.Identity, 0, n)
	keyPairs := make(map[identity.Index]corecrypto.KeyPair, n)
	for i := 0; i < n; i++ {
		idx := identity.Index(i)
		kp, err := mgr.GenerateKeyPair(corecrypto.KeyTypeEd25519)
		require.NoError(t, err)
		keyPairs[idx] = kp
		pub := kp.PublicKey().(ed25519.PublicKey)
		members = append(members, identity.Identity{
			Index:     idx,
			Address:   addrFor(idx),
			PublicKey: []byte(pub),
			KeyType:   corecrypto.KeyTypeEd25519,
		})
	}

	h := &harness{
		bus:       newMemoryBus(),
		tables:    make(map[identity.Index]*identity.Table, n),
		keys:      keyPairs,
		receivers: make(map[identity.Index]*Receiver, n),
		dispatch:  make(map[identity.Index]*runtime.Dispatch, n),
	}

	for i := 0; i < n; i++ {
		idx := identity.Index(i)
		table, err := identity.NewTable(idx, members)
		require.NoError(t, err)
		h.tables[idx] = table

		registry := message.NewRegistry()
		RegisterInto(registry)

		recv := New(table, keyPairs[idx], message.NewBinaryCodec())
		h.receivers[idx] = recv

		d, err := runtime.New(recv, runtime.Config{
			Table:     table,
			Manager:   mgr,
			Transport: h.bus.endpoint(addrFor(idx)),
			Registry:  registry,
		})
		require.NoError(t, err)
		h.dispatch[idx] = d
	}

	return h
}

// run starts every participant's Transport.Run and Dispatch.Run in
// background goroutines and returns a cancel func that stops them all.
func (h *harness) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	for _, d := range h.dispatch {
		go func(d *runtime.Dispatch) {
			_ = d.RunWithTransport(ctx)
		}(d)
	}
	// Give each Dispatch's Run loop a moment to reach its steady-state
	// select before the test starts pushing ingress items.
	time.Sleep(10 * time.Millisecond)
	return cancel
}

func TestPingPongRoundTripSigned(t *testing.T) {
	h := newHarness(t, 2)
	cancel := h.run(t)
	defer cancel()

	env, err := h.receivers[0].SignPayload(KindPing, PingPayload{From: 0, Counter: 7})
	require.NoError(t, err)

	h.bus.mu.Lock()
	dest := h.bus.queues[addrFor(1)]
	h.bus.mu.Unlock()
	require.NotNil(t, dest)
	dest.Push(ingress.Item{Source: addrFor(0), Bytes: message.EncodeMessage(*env)})

	require.Eventually(t, func() bool {
		return h.receivers[1].PingCount == 1
	}, time.Second, time.Millisecond)
}

func TestStartRoundLoopsBackOnce(t *testing.T) {
	h := newHarness(t, 2)
	cancel := h.run(t)
	defer cancel()

	env, err := h.receivers[1].SignPayload(KindStartRound, StartRoundPayload{From: 1, Round: 1})
	require.NoError(t, err)

	h.bus.mu.Lock()
	dest := h.bus.queues[addrFor(0)]
	h.bus.mu.Unlock()
	require.NotNil(t, dest)
	dest.Push(ingress.Item{Source: addrFor(1), Bytes: message.EncodeMessage(*env)})

	require.Eventually(t, func() bool {
		return h.receivers[0].StartRoundCount == 2
	}, time.Second, time.Millisecond)
	require.Equal(t, uint32(loopbackRound), h.receivers[0].LastStartRound().Round)
}
