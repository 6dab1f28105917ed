package runtime

import (
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/message"
)

// Receiver is the protocol state machine a Dispatch drives. All
// methods are invoked synchronously on the Dispatch's single event
// loop goroutine and must never block or spawn goroutines that touch
// ctx.
type Receiver interface {
	// OnMessage is called once per accepted ingress item. verified
	// reports whether the policy for kind required and passed
	// signature verification; verifiedSigner is meaningful only when
	// verified is true.
	OnMessage(ctx *Context, kind message.Kind, payload []byte, verifiedSigner identity.Index, verified bool)

	// OnTimer is called when a previously-set timer fires with the
	// token it was armed with.
	OnTimer(ctx *Context, token any)

	// VerifyPolicy reports how incoming messages of kind should be
	// handled before OnMessage is invoked.
	VerifyPolicy(kind message.Kind) Policy

	// SignPayload encodes and, where the message Kind's family calls
	// for it, signs payload, producing the Envelope to send.
	SignPayload(kind message.Kind, payload any) (*message.Envelope, error)
}

// PaceAware is an optional interface a Receiver can implement to
// receive pace-interval callbacks (see paceState).
type PaceAware interface {
	// OnPace is called once per elapsed pace interval.
	OnPace(ctx *Context)
}
