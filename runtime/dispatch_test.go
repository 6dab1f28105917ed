package runtime

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/crypto/keys"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/ingress"
	"github.com/neatsys-bench/neatcore/ingress/transport"
	_ "github.com/neatsys-bench/neatcore/internal/cryptoinit"
	"github.com/neatsys-bench/neatcore/message"
)

// testKind is the single payload Kind these tests exercise.
const testKind message.Kind = 1

type testPayload struct {
	From    identity.Index
	Counter int
}

func (testPayload) CanonicalKind() message.Kind { return testKind }

// noopTransport satisfies transport.Transport without touching the
// network: Run simply blocks until ctx is cancelled, and Send records
// what was written for assertions.
type noopTransport struct {
	mu   sync.Mutex
	sent []sentRecord
}

type sentRecord struct {
	addr  string
	bytes []byte
}

func (n *noopTransport) Run(ctx context.Context, q *ingress.Queue) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *noopTransport) Send(addr string, bytes []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentRecord{addr: addr, bytes: bytes})
	return nil
}

func (n *noopTransport) LocalAddr() string { return "test" }
func (n *noopTransport) Close() error      { return nil }

var _ transport.Transport = (*noopTransport)(nil)

type spyRecorder struct {
	mu    sync.Mutex
	drops []string
}

func (s *spyRecorder) IncDropped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops = append(s.drops, reason)
}

func (s *spyRecorder) reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.drops))
	copy(out, s.drops)
	return out
}

// recordingReceiver counts callback invocations and, if loopbackOnce is
// set, issues exactly one Loopback the first time OnMessage runs.
type recordingReceiver struct {
	mu            sync.Mutex
	messages      int
	timers        int
	lastSigner    identity.Index
	lastVerified  bool
	loopbackOnce  bool
	loopbackEnv   message.Envelope
	loopbackFired bool
	policy        Policy
}

func (r *recordingReceiver) OnMessage(ctx *Context, kind message.Kind, payload []byte, signer identity.Index, verified bool) {
	r.mu.Lock()
	r.messages++
	r.lastSigner = signer
	r.lastVerified = verified
	fireLoopback := r.loopbackOnce && !r.loopbackFired
	if fireLoopback {
		r.loopbackFired = true
	}
	r.mu.Unlock()

	if fireLoopback {
		ctx.Loopback(r.loopbackEnv)
	}
}

func (r *recordingReceiver) OnTimer(ctx *Context, token any) {
	r.mu.Lock()
	r.timers++
	r.mu.Unlock()
}

func (r *recordingReceiver) VerifyPolicy(kind message.Kind) Policy {
	return r.policy
}

func (r *recordingReceiver) SignPayload(kind message.Kind, payload any) (*message.Envelope, error) {
	return nil, nil
}

func (r *recordingReceiver) count() (messages, timers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages, r.timers
}

// twoPartyTable builds a 2-member identity.Table (self=0) plus the
// Ed25519 key pairs backing each member, so tests can sign as one
// party and verify as the other without the crypto.Manager/cryptoinit
// indirection (keys.GenerateEd25519KeyPair is called directly, which
// needs no init-time wiring).
func twoPartyTable(t *testing.T) (*identity.Table, map[identity.Index]crypto.KeyPair) {
	t.Helper()
	kp0, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)
	kp1, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	members := []identity.Identity{
		{Index: 0, Address: "p0", PublicKey: pubBytes(t, kp0), KeyType: crypto.KeyTypeEd25519},
		{Index: 1, Address: "p1", PublicKey: pubBytes(t, kp1), KeyType: crypto.KeyTypeEd25519},
	}
	table, err := identity.NewTable(0, members)
	require.NoError(t, err)

	return table, map[identity.Index]crypto.KeyPair{0: kp0, 1: kp1}
}

func pubBytes(t *testing.T, kp crypto.KeyPair) []byte {
	t.Helper()
	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	require.True(t, ok, "expected an ed25519 public key, got %T", kp.PublicKey())
	return []byte(pub)
}

func newTestDispatch(t *testing.T, receiver Receiver, table *identity.Table, recorder DropRecorder) (*Dispatch, *message.Registry) {
	t.Helper()
	registry := message.NewRegistry()
	registry.Register(testKind, func() message.Canonicalizable { return &message.Signed[testPayload]{} })

	d, err := New(receiver, Config{
		Table:     table,
		Manager:   crypto.NewManager(),
		Transport: &noopTransport{},
		Registry:  registry,
		Metrics:   recorder,
	})
	require.NoError(t, err)
	return d, registry
}

func signEnvelope(t *testing.T, kp crypto.KeyPair, p testPayload) message.Envelope {
	t.Helper()
	return signEnvelopeTamper(t, kp, p, false)
}

func signEnvelopeTamper(t *testing.T, kp crypto.KeyPair, p testPayload, tamper bool) message.Envelope {
	t.Helper()
	codec := message.NewBinaryCodec()
	signed := &message.Signed[testPayload]{Inner: p}
	canonical, err := signed.CanonicalBytes(codec)
	require.NoError(t, err)
	sig, err := kp.Sign(canonical)
	require.NoError(t, err)
	if tamper {
		sig[0] ^= 0xFF
	}
	signed.Sig = sig
	opaque, err := codec.Encode(signed)
	require.NoError(t, err)
	return message.Envelope{Kind: testKind, Opaque: opaque}
}

func TestHandleIngressVerifiesAndDelivers(t *testing.T) {
	table, keyPairs := twoPartyTable(t)
	recv := &recordingReceiver{policy: VerifyThen(func(payload any) identity.Index {
		return payload.(*message.Signed[testPayload]).Inner.From
	})}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	env := signEnvelope(t, keyPairs[1], testPayload{From: 1, Counter: 9})
	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: message.EncodeMessage(env)})

	messages, _ := recv.count()
	assert.Equal(t, 1, messages)
	assert.Equal(t, identity.Index(1), recv.lastSigner)
	assert.True(t, recv.lastVerified)
	assert.Empty(t, rec.reasons())
}

func TestHandleIngressBadSignatureDropped(t *testing.T) {
	table, keyPairs := twoPartyTable(t)
	recv := &recordingReceiver{policy: VerifyThen(func(payload any) identity.Index {
		return payload.(*message.Signed[testPayload]).Inner.From
	})}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	env := signEnvelopeTamper(t, keyPairs[1], testPayload{From: 1, Counter: 9}, true)
	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: message.EncodeMessage(env)})

	messages, _ := recv.count()
	assert.Equal(t, 0, messages)
	assert.Contains(t, rec.reasons(), "bad-signature")
}

func TestHandleIngressUnknownSignerDropped(t *testing.T) {
	table, keyPairs := twoPartyTable(t)
	recv := &recordingReceiver{policy: VerifyThen(func(payload any) identity.Index {
		return payload.(*message.Signed[testPayload]).Inner.From
	})}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	env := signEnvelope(t, keyPairs[1], testPayload{From: 99, Counter: 9})
	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: message.EncodeMessage(env)})

	messages, _ := recv.count()
	assert.Equal(t, 0, messages)
	assert.Contains(t, rec.reasons(), "unknown-signer")
}

func TestHandleIngressPolicyDropNeverReachesReceiver(t *testing.T) {
	table, keyPairs := twoPartyTable(t)
	recv := &recordingReceiver{policy: Drop}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	env := signEnvelope(t, keyPairs[1], testPayload{From: 1, Counter: 9})
	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: message.EncodeMessage(env)})

	messages, _ := recv.count()
	assert.Equal(t, 0, messages)
	assert.Contains(t, rec.reasons(), "policy")
}

func TestHandleIngressUndecodableDropped(t *testing.T) {
	table, _ := twoPartyTable(t)
	recv := &recordingReceiver{policy: Skip}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: []byte{0xFF, 0xFF, 0xFF}})

	messages, _ := recv.count()
	assert.Equal(t, 0, messages)
	assert.Contains(t, rec.reasons(), "decode")
}

// TestLoopbackFidelity exercises spec's loopback invariant: a message a
// Receiver sends to itself arrives back through the exact same ingress
// path (decode, verify policy, OnMessage) as an externally-arrived one,
// rather than through a shortcut.
func TestLoopbackFidelity(t *testing.T) {
	table, keyPairs := twoPartyTable(t)
	loopEnv := signEnvelope(t, keyPairs[0], testPayload{From: 0, Counter: 1})
	recv := &recordingReceiver{
		policy: VerifyThen(func(payload any) identity.Index {
			return payload.(*message.Signed[testPayload]).Inner.From
		}),
		loopbackOnce: true,
		loopbackEnv:  loopEnv,
	}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	env := signEnvelope(t, keyPairs[1], testPayload{From: 1, Counter: 0})
	d.handleIngress(time.Now(), ingress.Item{Source: "p1", Bytes: message.EncodeMessage(env)})

	messages, _ := recv.count()
	require.Equal(t, 1, messages, "first ingress item should have been handled, and only it should have fired the loopback")

	item, ok := d.queue.Pop()
	require.True(t, ok, "loopback delivery should have landed on the ingress queue")
	assert.Equal(t, d.table.SelfIdentity().Address, item.Source)

	d.handleIngress(time.Now(), item)
	messages, _ = recv.count()
	assert.Equal(t, 2, messages, "the looped-back message should be decoded, verified, and delivered exactly like an external one")
	assert.Equal(t, identity.Index(0), recv.lastSigner)
	assert.True(t, recv.lastVerified)
}

// TestTimerFiresExactlyOnce covers the non-reentrant, exactly-once
// invariant: a fired timer cannot be polled again, and a cancelled
// timer never fires even if its deadline has already passed.
func TestTimerFiresExactlyOnce(t *testing.T) {
	table, _ := twoPartyTable(t)
	recv := &recordingReceiver{policy: Skip}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	now := time.Now()
	id := d.setTimer(time.Millisecond, "token-a")

	firedID, token, ok := d.wheel.Poll(now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, id, firedID)
	d.handleTimer(firedID, token)

	_, _, ok = d.wheel.Poll(now.Add(2 * time.Hour))
	assert.False(t, ok, "a fired timer must never be polled a second time")

	_, timers := recv.count()
	assert.Equal(t, 1, timers)
}

func TestCancelledTimerNeverFires(t *testing.T) {
	table, _ := twoPartyTable(t)
	recv := &recordingReceiver{policy: Skip}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	now := time.Now()
	id := d.setTimer(time.Millisecond, "token-b")
	d.unsetTimer(id)

	_, _, ok := d.wheel.Poll(now.Add(time.Hour))
	assert.False(t, ok, "cancel-wins: a cancelled timer must not fire even once its deadline has passed")

	_, timers := recv.count()
	assert.Equal(t, 0, timers)
}

// TestStopDrainsAndExits covers spec's shutdown semantics: Stop causes
// Run to return promptly, and the Dispatch never services another
// event afterward.
func TestStopDrainsAndExits(t *testing.T) {
	table, _ := twoPartyTable(t)
	recv := &recordingReceiver{policy: Skip}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, "running", d.State())
	d.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, "stopped", d.State())
}

func TestBroadcastSkipsSelf(t *testing.T) {
	table, _ := twoPartyTable(t)
	recv := &recordingReceiver{policy: Skip}
	rec := &spyRecorder{}
	d, _ := newTestDispatch(t, recv, table, rec)

	nt := d.tr.(*noopTransport)
	d.broadcast(message.Envelope{Kind: testKind, Opaque: []byte("x")})

	nt.mu.Lock()
	defer nt.mu.Unlock()
	require.Len(t, nt.sent, 1, "a 2-party table's broadcast must reach exactly the one non-self participant")
	assert.Equal(t, "p1", nt.sent[0].addr)
}
