// Package cryptoinit initializes the crypto package with implementations
// from subpackages to avoid circular dependencies.
package cryptoinit

import (
	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/crypto/keys"
	"github.com/neatsys-bench/neatcore/crypto/storage"
)

func init() {
	// Register key generators
	crypto.SetKeyGenerators(
		func() (crypto.KeyPair, error) { return keys.GenerateEd25519KeyPair() },
		func() (crypto.KeyPair, error) { return keys.GenerateSecp256k1KeyPair() },
		func() (crypto.KeyPair, error) { return keys.GenerateX25519KeyPair() },
	)

	// Register storage constructors
	crypto.SetStorageConstructors(
		func() crypto.KeyStorage { return storage.NewMemoryKeyStorage() },
	)

	// Register the HMAC-pairwise MAC key derivation
	crypto.SetPairwiseHMACConstructor(keys.NewPairwiseMAC)
}
