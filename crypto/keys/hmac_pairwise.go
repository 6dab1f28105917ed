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
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"golang.org/x/crypto/hkdf"
)

// pairwiseInfo is the HKDF info string binding the derived MAC key to
// this protocol, mirroring the ack-key derivation used for HPKE key
// confirmation: exporter secret -> HKDF-Expand(info) -> purpose-bound key.
const pairwiseInfo = "neatcore-pairwise-mac-v1"

// hmacPairwiseKeyPair is the symmetric KeyType's KeyPair: a single MAC
// key shared between exactly two identities, derived from their X25519
// static keys. Each NewPairwiseMAC call re-runs the derivation; neither
// this type nor crypto.Manager caches the result.
type hmacPairwiseKeyPair struct {
	macKey []byte
	id     string
}

// NewPairwiseMAC derives the HMAC-pairwise KeyPair from a local X25519
// key pair and a peer's raw X25519 public key bytes. Both sides of a
// pair must derive the same key, so the derivation must not depend on
// which side is the caller: DeriveSharedSecret over a static-static
// ECDH is already symmetric in its two inputs.
func NewPairwiseMAC(self corecrypto.KeyPair, peerPub []byte) (corecrypto.KeyPair, error) {
	x25519Self, ok := self.(*X25519KeyPair)
	if !ok {
		return nil, fmt.Errorf("pairwise MAC requires an X25519 key pair, got %T", self)
	}

	shared, err := x25519Self.DeriveSharedSecret(peerPub)
	if err != nil {
		return nil, fmt.Errorf("pairwise MAC: %w", err)
	}

	h := hkdf.New(sha256.New, shared, nil, []byte(pairwiseInfo))
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(h, macKey); err != nil {
		return nil, fmt.Errorf("pairwise MAC: hkdf expand: %w", err)
	}

	return &hmacPairwiseKeyPair{
		macKey: macKey,
		id:     self.ID(),
	}, nil
}

// PublicKey is nil: the pairwise family has no asymmetric public part.
func (kp *hmacPairwiseKeyPair) PublicKey() crypto.PublicKey {
	return nil
}

// PrivateKey returns the raw MAC key.
func (kp *hmacPairwiseKeyPair) PrivateKey() crypto.PrivateKey {
	return kp.macKey
}

// Type returns the key type
func (kp *hmacPairwiseKeyPair) Type() corecrypto.KeyType {
	return corecrypto.KeyTypeHMACPairwise
}

// Sign computes an HMAC-SHA256 tag over message.
func (kp *hmacPairwiseKeyPair) Sign(message []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, kp.macKey)
	mac.Write(message)
	return mac.Sum(nil), nil
}

// Verify checks an HMAC-SHA256 tag in constant time.
func (kp *hmacPairwiseKeyPair) Verify(message, signature []byte) error {
	mac := hmac.New(sha256.New, kp.macKey)
	mac.Write(message)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, signature) {
		return corecrypto.ErrInvalidSignature
	}
	return nil
}

// ID returns the identifier of the local X25519 key pair this MAC was
// derived from. It is the same for every peer, so it does not identify
// the peer relationship.
func (kp *hmacPairwiseKeyPair) ID() string {
	return kp.id
}
