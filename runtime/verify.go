package runtime

import (
	"crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/crypto/keys"
	"github.com/neatsys-bench/neatcore/identity"
)

// verifierFor returns a verify-only KeyPair for id, selecting the
// construction that matches its KeyType. The HMAC-pairwise family
// needs the local participant's own X25519 key pair to re-derive the
// shared MAC key; asymmetric families only need the peer's public key.
func (d *Dispatch) verifierFor(id identity.Identity) (corecrypto.KeyPair, error) {
	switch id.KeyType {
	case corecrypto.KeyTypeEd25519:
		if len(id.PublicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("runtime: bad ed25519 public key length for identity %d", id.Index)
		}
		return keys.NewPublicKeyOnlyEd25519(ed25519.PublicKey(id.PublicKey), ""), nil

	case corecrypto.KeyTypeSecp256k1:
		pub, err := secp256k1.ParsePubKey(id.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("runtime: parse secp256k1 public key for identity %d: %w", id.Index, err)
		}
		return keys.NewPublicKeyOnlySecp256k1(pub, ""), nil

	case corecrypto.KeyTypeHMACPairwise:
		if d.localX25519 == nil {
			return nil, fmt.Errorf("runtime: no local X25519 key pair configured for HMAC-pairwise verification")
		}
		return d.mgr.DerivePairwiseMAC(d.localX25519, id.PublicKey)

	default:
		return nil, fmt.Errorf("runtime: unsupported key type %q for identity %d", id.KeyType, id.Index)
	}
}
