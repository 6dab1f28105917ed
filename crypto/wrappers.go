package crypto

// This file provides wrapper functions implemented by a separate
// initialization package (internal/cryptoinit) to avoid a circular
// dependency: crypto/keys imports crypto for the KeyPair interface, so
// crypto itself cannot import crypto/keys directly.

var (
	// generateEd25519KeyPair is the implementation function for Ed25519 key generation
	generateEd25519KeyPair func() (KeyPair, error)

	// generateSecp256k1KeyPair is the implementation function for Secp256k1 key generation
	generateSecp256k1KeyPair func() (KeyPair, error)

	// generateX25519KeyPair is the implementation function for X25519 key generation
	generateX25519KeyPair func() (KeyPair, error)

	// newMemoryKeyStorage is the implementation function for memory storage creation
	newMemoryKeyStorage func() KeyStorage

	// newPairwiseHMAC derives an HMAC-pairwise KeyPair from a local
	// X25519 key pair and a peer's raw X25519 public key bytes.
	newPairwiseHMAC func(self KeyPair, peerPub []byte) (KeyPair, error)
)

// SetKeyGenerators sets the key generation functions
func SetKeyGenerators(ed25519Gen, secp256k1Gen, x25519Gen func() (KeyPair, error)) {
	generateEd25519KeyPair = ed25519Gen
	generateSecp256k1KeyPair = secp256k1Gen
	generateX25519KeyPair = x25519Gen
}

// SetStorageConstructors sets the storage constructor functions
func SetStorageConstructors(memoryStorage func() KeyStorage) {
	newMemoryKeyStorage = memoryStorage
}

// SetPairwiseHMACConstructor sets the HMAC-pairwise key derivation function
func SetPairwiseHMACConstructor(fn func(self KeyPair, peerPub []byte) (KeyPair, error)) {
	newPairwiseHMAC = fn
}

// NewEd25519KeyPair generates a new Ed25519 key pair
func NewEd25519KeyPair() (KeyPair, error) {
	if generateEd25519KeyPair == nil {
		panic("crypto: Ed25519 key generator not initialized, import internal/cryptoinit")
	}
	return generateEd25519KeyPair()
}

// NewSecp256k1KeyPair generates a new Secp256k1 key pair
func NewSecp256k1KeyPair() (KeyPair, error) {
	if generateSecp256k1KeyPair == nil {
		panic("crypto: Secp256k1 key generator not initialized, import internal/cryptoinit")
	}
	return generateSecp256k1KeyPair()
}

// NewX25519KeyPair generates a new X25519 key pair
func NewX25519KeyPair() (KeyPair, error) {
	if generateX25519KeyPair == nil {
		panic("crypto: X25519 key generator not initialized, import internal/cryptoinit")
	}
	return generateX25519KeyPair()
}

// NewPairwiseHMAC derives the HMAC-pairwise KeyPair between self (an
// X25519 KeyPair) and a peer's raw X25519 public key bytes.
func NewPairwiseHMAC(self KeyPair, peerPub []byte) (KeyPair, error) {
	if newPairwiseHMAC == nil {
		panic("crypto: pairwise HMAC constructor not initialized, import internal/cryptoinit")
	}
	return newPairwiseHMAC(self, peerPub)
}

// NewMemoryKeyStorage creates a new memory key storage
func NewMemoryKeyStorage() KeyStorage {
	if newMemoryKeyStorage == nil {
		panic("crypto: memory key storage constructor not initialized, import internal/cryptoinit")
	}
	return newMemoryKeyStorage()
}
