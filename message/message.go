// Package message implements the wire envelope: a closed, tagged union
// of protocol message variants, each optionally wrapped in a signature
// at the payload level rather than around the whole envelope.
package message

import "fmt"

// Kind tags which protocol variant an Envelope's payload holds. Values
// are assigned once and never reordered or reused across releases —
// the wire format depends on the numeric value, not the name.
type Kind uint8

// Canonicalizable is satisfied by any payload type that can serialize
// itself for signing with its signature slot conceptually zeroed.
// Signed[X] requires X to satisfy this so CanonicalBytes has something
// deterministic to hash/sign over.
type Canonicalizable interface {
	// CanonicalKind returns the Kind this payload encodes as.
	CanonicalKind() Kind
}

// Envelope is the wire-level closed sum type: a Kind tag plus the
// per-variant encoded payload body. Decoding an Envelope does not
// interpret opaque; callers look up the Kind's registered payload type
// and decode it themselves.
type Envelope struct {
	Kind   Kind
	Opaque []byte
}

// Signed pairs an inner payload with a detached signature over its
// canonical bytes. Signature wrapping lives at the variant-payload
// level (Message::X(Signed<X>) in the source design), not around the
// whole Envelope, so unsigned and signed variants can coexist in the
// same closed union.
type Signed[X Canonicalizable] struct {
	Inner X
	Sig   []byte
}

// CanonicalBytes serializes Inner through codec with the signature slot
// absent. Because Sig is not part of X, encoding Inner alone already
// produces the zero-sig canonical form: there is no field to zero out.
func (s Signed[X]) CanonicalBytes(codec Codec) ([]byte, error) {
	return codec.Encode(s.Inner)
}

// CanonicalKind delegates to Inner, so Signed[X] itself satisfies
// Canonicalizable for any X that does.
func (s Signed[X]) CanonicalKind() Kind {
	return s.Inner.CanonicalKind()
}

// Signature returns the detached signature bytes.
func (s Signed[X]) Signature() []byte {
	return s.Sig
}

// Signable is satisfied generically by Signed[X] for any registered
// payload type X, so a Dispatch can verify a signed envelope's payload
// without a per-Kind type switch: it decodes into the Signable the
// Registry handed back and calls Signature/CanonicalBytes uniformly.
type Signable interface {
	Canonicalizable
	Signature() []byte
	CanonicalBytes(codec Codec) ([]byte, error)
}

// Registry maps a Kind to the codec-facing factory for its payload
// type. Protocols register their variants at init() or construction
// time, mirroring the teacher's chain-registry pattern generalized
// from blockchain providers to message payloads.
type Registry struct {
	factories map[Kind]func() Canonicalizable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]func() Canonicalizable)}
}

// Register associates kind with a zero-value factory for its payload
// type. Registering the same Kind twice is a programmer error.
func (r *Registry) Register(kind Kind, factory func() Canonicalizable) {
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("message: kind %d already registered", kind))
	}
	r.factories[kind] = factory
}

// New allocates a zero-value payload for kind, or an error if kind was
// never registered.
func (r *Registry) New(kind Kind) (Canonicalizable, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("message: unknown kind %d", kind)
	}
	return factory(), nil
}
