// Package null provides a no-op runtime.Receiver for isolating
// Dispatch mechanics (timers, pace, shutdown) from protocol logic,
// mirroring the teacher's habit of a minimal fixture type per test
// subject (e.g. core/session's in-memory stores). The runtime package's
// own tests do not use it; they define their own recording receiver.
package null

import (
	"fmt"

	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/runtime"
)

// Receiver records every callback it receives but takes no action.
// Safe for concurrent reads of its slices only after the owning
// Dispatch has stopped; Dispatch never calls a Receiver from more than
// one goroutine at a time, so no internal locking is needed here.
type Receiver struct {
	Messages []MessageCall
	Timers   []TimerCall
	Paces    int
}

// MessageCall records one OnMessage invocation.
type MessageCall struct {
	Kind     message.Kind
	Payload  []byte
	Signer   identity.Index
	Verified bool
}

// TimerCall records one OnTimer invocation.
type TimerCall struct {
	Token any
}

// New returns an empty Receiver.
func New() *Receiver {
	return &Receiver{}
}

func (r *Receiver) OnMessage(ctx *runtime.Context, kind message.Kind, payload []byte, signer identity.Index, verified bool) {
	r.Messages = append(r.Messages, MessageCall{Kind: kind, Payload: payload, Signer: signer, Verified: verified})
}

func (r *Receiver) OnTimer(ctx *runtime.Context, token any) {
	r.Timers = append(r.Timers, TimerCall{Token: token})
}

func (r *Receiver) OnPace(ctx *runtime.Context) {
	r.Paces++
}

// VerifyPolicy skips verification for every kind; null has no notion
// of signed payloads of its own.
func (r *Receiver) VerifyPolicy(kind message.Kind) runtime.Policy {
	return runtime.Skip
}

func (r *Receiver) SignPayload(kind message.Kind, payload any) (*message.Envelope, error) {
	return nil, fmt.Errorf("null: SignPayload not supported")
}
