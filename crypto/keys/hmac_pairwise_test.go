package keys

import (
	"testing"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairwiseMAC(t *testing.T) {
	t.Run("BothSidesDeriveTheSameKey", func(t *testing.T) {
		a, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		b, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		aX, ok := a.(*X25519KeyPair)
		require.True(t, ok)
		bX, ok := b.(*X25519KeyPair)
		require.True(t, ok)

		macA, err := NewPairwiseMAC(aX, bX.PublicKeyBytes())
		require.NoError(t, err)
		macB, err := NewPairwiseMAC(bX, aX.PublicKeyBytes())
		require.NoError(t, err)

		tag, err := macA.Sign([]byte("hello"))
		require.NoError(t, err)
		assert.NoError(t, macB.Verify([]byte("hello"), tag))

		assert.Equal(t, corecrypto.KeyTypeHMACPairwise, macA.Type())
		assert.Nil(t, macA.PublicKey())
	})

	t.Run("WrongPeerFailsVerification", func(t *testing.T) {
		a, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		b, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		c, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		aX := a.(*X25519KeyPair)
		bX := b.(*X25519KeyPair)
		cX := c.(*X25519KeyPair)

		macAB, err := NewPairwiseMAC(aX, bX.PublicKeyBytes())
		require.NoError(t, err)
		macAC, err := NewPairwiseMAC(aX, cX.PublicKeyBytes())
		require.NoError(t, err)

		tag, err := macAB.Sign([]byte("hello"))
		require.NoError(t, err)
		assert.ErrorIs(t, macAC.Verify([]byte("hello"), tag), corecrypto.ErrInvalidSignature)
	})

	t.Run("RejectsNonX25519Self", func(t *testing.T) {
		ed, err := GenerateEd25519KeyPair()
		require.NoError(t, err)

		_, err = NewPairwiseMAC(ed, []byte("not-a-real-peer-key"))
		assert.Error(t, err)
	})
}
