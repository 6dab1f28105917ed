package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kindPing Kind = 1

type pingPayload struct {
	Nonce uint64
}

func (pingPayload) CanonicalKind() Kind { return kindPing }

func TestBinaryCodecRoundTrip(t *testing.T) {
	codec := NewBinaryCodec()

	in := pingPayload{Nonce: 42}
	encoded, err := codec.Encode(in)
	require.NoError(t, err)

	var out pingPayload
	require.NoError(t, codec.Decode(encoded, &out))
	assert.Equal(t, in, out)
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	codec := NewBinaryCodec()
	payload, err := codec.Encode(pingPayload{Nonce: 7})
	require.NoError(t, err)

	env := Envelope{Kind: kindPing, Opaque: payload}
	wire := EncodeMessage(env)

	decoded, err := DecodeMessage(wire)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	var out pingPayload
	require.NoError(t, codec.Decode(decoded.Opaque, &out))
	assert.Equal(t, uint64(7), out.Nonce)
}

func TestSignedCanonicalBytesExcludesSignature(t *testing.T) {
	codec := NewBinaryCodec()

	signed := Signed[pingPayload]{Inner: pingPayload{Nonce: 9}, Sig: []byte("ignored")}
	canonical, err := signed.CanonicalBytes(codec)
	require.NoError(t, err)

	plain, err := codec.Encode(pingPayload{Nonce: 9})
	require.NoError(t, err)

	assert.Equal(t, plain, canonical, "signature must not influence canonical bytes")
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(kindPing, func() Canonicalizable { return &pingPayload{} })

	payload, err := reg.New(kindPing)
	require.NoError(t, err)
	assert.IsType(t, &pingPayload{}, payload)

	_, err = reg.New(Kind(200))
	assert.Error(t, err)
}

func TestRegistryDuplicateRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(kindPing, func() Canonicalizable { return &pingPayload{} })

	assert.Panics(t, func() {
		reg.Register(kindPing, func() Canonicalizable { return &pingPayload{} })
	})
}

func TestDecodeMessageRejectsEmpty(t *testing.T) {
	_, err := DecodeMessage(nil)
	assert.Error(t, err)
}
