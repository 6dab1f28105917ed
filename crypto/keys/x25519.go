// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package keys

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
)

// X25519KeyPair holds an X25519 private key and its corresponding public key bytes.
// Every identity in the HMAC-pairwise family carries one of these as its
// long-term key-agreement material; NewPairwiseMAC derives the actual
// signing key from a static-static ECDH between two such pairs.
type X25519KeyPair struct {
	privateKey *ecdh.PrivateKey
	publicKey  *ecdh.PublicKey
	id         string
}

// GenerateX25519KeyPair generates a new X25519 key pair.
func GenerateX25519KeyPair() (corecrypto.KeyPair, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate X25519 key: %w", err)
	}
	publicKey := privateKey.PublicKey()

	hash := sha256.Sum256(publicKey.Bytes())
	id := hex.EncodeToString(hash[:8])

	return &X25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// PublicKey returns the public key
func (kp *X25519KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey
}

// PublicKeyBytes returns the raw 32-byte public key.
func (kp *X25519KeyPair) PublicKeyBytes() []byte {
	return kp.publicKey.Bytes()
}

// PrivateKey returns the private key
func (kp *X25519KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey
}

// Type returns the key type
func (kp *X25519KeyPair) Type() corecrypto.KeyType {
	return corecrypto.KeyTypeX25519
}

// ID returns a unique identifier for this key pair
func (kp *X25519KeyPair) ID() string {
	return kp.id
}

// Sign returns an error: X25519 is a key-agreement algorithm only.
func (kp *X25519KeyPair) Sign(message []byte) ([]byte, error) {
	return nil, corecrypto.ErrSignNotSupported
}

// Verify returns an error: X25519 is a key-agreement algorithm only.
func (kp *X25519KeyPair) Verify(message, signature []byte) error {
	return corecrypto.ErrVerifyNotSupported
}

// DeriveSharedSecret computes a 32-byte secret from an X25519 ECDH
// exchange between our private key and a peer's raw public key bytes.
func (kp *X25519KeyPair) DeriveSharedSecret(peerPubBytes []byte) ([]byte, error) {
	curve := ecdh.X25519()
	peerPub, err := curve.NewPublicKey(peerPubBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer public key: %w", err)
	}

	shared, err := kp.privateKey.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	sum := sha256.Sum256(shared)
	return sum[:], nil
}
