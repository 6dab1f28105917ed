// Package echo implements the two literal end-to-end receivers from
// spec.md §8: a two-identity Ping/Pong receiver that replies with a
// signed Pong carrying the same counter (Scenario 1), and a StartRound
// receiver that loopbacks a fixed payload each time it observes an
// externally-signed StartRound (Scenario 2). It is a collaborator
// fixture for this package's end-to-end tests, not one of the BFT
// protocol state machines the spec puts out of scope.
package echo

import (
	"fmt"

	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/runtime"
)

// Message kinds. Values are assigned once; see message.Kind's
// non-reorderable contract.
const (
	KindPing message.Kind = iota + 1
	KindPong
	KindStartRound
)

// PingPayload is Scenario 1's request: a counter, signed by the
// sender.
type PingPayload struct {
	From    identity.Index
	Counter uint64
}

func (PingPayload) CanonicalKind() message.Kind { return KindPing }

// PongPayload is Scenario 1's reply: the same counter, signed by the
// replier.
type PongPayload struct {
	From    identity.Index
	Counter uint64
}

func (PongPayload) CanonicalKind() message.Kind { return KindPong }

// StartRoundPayload is Scenario 2's message.
type StartRoundPayload struct {
	From  identity.Index
	Round uint32
}

func (StartRoundPayload) CanonicalKind() message.Kind { return KindStartRound }

// loopbackRound is the fixed round number Scenario 2's receiver
// loopbacks each time it sees an externally-arrived StartRound.
const loopbackRound = 42

// Receiver implements runtime.Receiver for the Ping/Pong + StartRound
// fixture. Table and Key are required; Key signs every egress payload
// and every loopback this Receiver issues.
type Receiver struct {
	Table *identity.Table
	Key   crypto.KeyPair
	Codec message.Codec

	// PingCount and StartRoundCount record how many times each variant
	// handler ran, for tests to assert against (spec.md §8's "handler
	// invoked twice" assertion for Scenario 2).
	PingCount       int
	StartRoundCount int
	lastStartRound  StartRoundPayload
}

// New returns a Receiver that signs with key and resolves peers
// through table, using codec for canonicalization. A nil codec
// defaults to message.NewBinaryCodec().
func New(table *identity.Table, key crypto.KeyPair, codec message.Codec) *Receiver {
	if codec == nil {
		codec = message.NewBinaryCodec()
	}
	return &Receiver{Table: table, Key: key, Codec: codec}
}

// RegisterInto registers this package's three Kinds with registry, so
// Dispatch can allocate a zero-value Signed[X] to decode into before
// handing it to this Receiver's VerifyPolicy extractor. Call once per
// Registry before starting a Dispatch that uses an echo Receiver.
func RegisterInto(registry *message.Registry) {
	registry.Register(KindPing, func() message.Canonicalizable { return &message.Signed[PingPayload]{} })
	registry.Register(KindPong, func() message.Canonicalizable { return &message.Signed[PongPayload]{} })
	registry.Register(KindStartRound, func() message.Canonicalizable { return &message.Signed[StartRoundPayload]{} })
}

// VerifyPolicy requires a valid signature for every variant this
// Receiver knows about, extracting the claimed signer from the
// payload's From field, and drops anything else.
func (r *Receiver) VerifyPolicy(kind message.Kind) runtime.Policy {
	switch kind {
	case KindPing:
		return runtime.VerifyThen(func(payload any) identity.Index {
			return payload.(*message.Signed[PingPayload]).Inner.From
		})
	case KindPong:
		return runtime.VerifyThen(func(payload any) identity.Index {
			return payload.(*message.Signed[PongPayload]).Inner.From
		})
	case KindStartRound:
		return runtime.VerifyThen(func(payload any) identity.Index {
			return payload.(*message.Signed[StartRoundPayload]).Inner.From
		})
	default:
		return runtime.Drop
	}
}

// OnMessage decodes payload per kind (Dispatch hands the raw
// already-verified opaque bytes, not a pre-decoded value, so the
// Receiver owns decoding with the same Codec it signs with) and
// dispatches to the per-variant handler.
func (r *Receiver) OnMessage(ctx *runtime.Context, kind message.Kind, payload []byte, signer identity.Index, verified bool) {
	if !verified {
		return
	}
	switch kind {
	case KindPing:
		var signed message.Signed[PingPayload]
		if err := r.Codec.Decode(payload, &signed); err != nil {
			return
		}
		r.onPing(ctx, signed.Inner)
	case KindPong:
		var signed message.Signed[PongPayload]
		if err := r.Codec.Decode(payload, &signed); err != nil {
			return
		}
		r.onPong(ctx, signed.Inner)
	case KindStartRound:
		var signed message.Signed[StartRoundPayload]
		if err := r.Codec.Decode(payload, &signed); err != nil {
			return
		}
		r.onStartRound(ctx, signed.Inner)
	}
}

func (r *Receiver) onPing(ctx *runtime.Context, in PingPayload) {
	r.PingCount++
	out := PongPayload{From: r.Table.Self(), Counter: in.Counter}
	env, err := r.SignPayload(KindPong, out)
	if err != nil {
		return
	}
	ctx.Broadcast(*env)
}

func (r *Receiver) onPong(ctx *runtime.Context, in PongPayload) {
	// Terminal variant in this fixture: nothing replies to a Pong.
}

func (r *Receiver) onStartRound(ctx *runtime.Context, in StartRoundPayload) {
	r.StartRoundCount++
	r.lastStartRound = in
	if in.From == r.Table.Self() {
		// Our own loopback arriving back through ingress; don't
		// re-trigger, or every loopback would loopback forever.
		return
	}
	env, err := r.SignPayload(KindStartRound, StartRoundPayload{From: r.Table.Self(), Round: loopbackRound})
	if err != nil {
		return
	}
	ctx.Loopback(*env)
}

// LastStartRound returns the most recently observed StartRoundPayload,
// for tests.
func (r *Receiver) LastStartRound() StartRoundPayload {
	return r.lastStartRound
}

// OnTimer is unused by this fixture.
func (r *Receiver) OnTimer(ctx *runtime.Context, token any) {}

// SignPayload encodes payload, signs its canonical bytes with r.Key,
// and returns the Envelope ready for SendTo/Broadcast/Loopback.
func (r *Receiver) SignPayload(kind message.Kind, payload any) (*message.Envelope, error) {
	var signed message.Canonicalizable
	switch kind {
	case KindPing:
		p := payload.(PingPayload)
		signed = &message.Signed[PingPayload]{Inner: p}
	case KindPong:
		p := payload.(PongPayload)
		signed = &message.Signed[PongPayload]{Inner: p}
	case KindStartRound:
		p := payload.(StartRoundPayload)
		signed = &message.Signed[StartRoundPayload]{Inner: p}
	default:
		return nil, fmt.Errorf("echo: unknown kind %d", kind)
	}

	signable := signed.(message.Signable)
	canonical, err := signable.CanonicalBytes(r.Codec)
	if err != nil {
		return nil, fmt.Errorf("echo: canonical bytes: %w", err)
	}
	sig, err := r.Key.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("echo: sign: %w", err)
	}

	switch s := signed.(type) {
	case *message.Signed[PingPayload]:
		s.Sig = sig
	case *message.Signed[PongPayload]:
		s.Sig = sig
	case *message.Signed[StartRoundPayload]:
		s.Sig = sig
	}

	opaque, err := r.Codec.Encode(signed)
	if err != nil {
		return nil, fmt.Errorf("echo: encode: %w", err)
	}
	return &message.Envelope{Kind: kind, Opaque: opaque}, nil
}
