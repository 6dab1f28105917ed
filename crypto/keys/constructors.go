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
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	corecrypto "github.com/neatsys-bench/neatcore/crypto"
)

// NewEd25519KeyPair creates a new Ed25519 key pair from an existing private key
func NewEd25519KeyPair(privateKey ed25519.PrivateKey, id string) (corecrypto.KeyPair, error) {
	publicKey := privateKey.Public().(ed25519.PublicKey)

	if id == "" {
		hash := sha256.Sum256(publicKey)
		id = hex.EncodeToString(hash[:8])
	}

	return &ed25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// NewSecp256k1KeyPair creates a new Secp256k1 key pair from an existing private key
func NewSecp256k1KeyPair(privateKey *secp256k1.PrivateKey, id string) (corecrypto.KeyPair, error) {
	publicKey := privateKey.PubKey()

	if id == "" {
		pubKeyBytes := publicKey.SerializeCompressed()
		hash := sha256.Sum256(pubKeyBytes)
		id = hex.EncodeToString(hash[:8])
	}

	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// NewX25519KeyPairFromKey creates a new X25519 key pair from an existing private key
func NewX25519KeyPairFromKey(privateKey *ecdh.PrivateKey, id string) (corecrypto.KeyPair, error) {
	publicKey := privateKey.PublicKey()

	if id == "" {
		pubKeyBytes := publicKey.Bytes()
		hash := sha256.Sum256(pubKeyBytes)
		id = hex.EncodeToString(hash[:8])
	}

	return &X25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// publicKeyOnlyEd25519 wraps an Ed25519 public key for verification only.
// identity.Table holds peers' public keys, never their private keys, so
// verified signers are represented with this key-present/sign-absent pair.
type publicKeyOnlyEd25519 struct {
	publicKey ed25519.PublicKey
	id        string
}

func (pk *publicKeyOnlyEd25519) PublicKey() crypto.PublicKey {
	return pk.publicKey
}

func (pk *publicKeyOnlyEd25519) PrivateKey() crypto.PrivateKey {
	return nil
}

func (pk *publicKeyOnlyEd25519) Type() corecrypto.KeyType {
	return corecrypto.KeyTypeEd25519
}

func (pk *publicKeyOnlyEd25519) Sign(message []byte) ([]byte, error) {
	return nil, errors.New("cannot sign with public key only")
}

func (pk *publicKeyOnlyEd25519) Verify(message, signature []byte) error {
	if !ed25519.Verify(pk.publicKey, message, signature) {
		return corecrypto.ErrInvalidSignature
	}
	return nil
}

func (pk *publicKeyOnlyEd25519) ID() string {
	return pk.id
}

// NewPublicKeyOnlyEd25519 wraps a peer's Ed25519 public key for
// verification without holding any private key material.
func NewPublicKeyOnlyEd25519(publicKey ed25519.PublicKey, id string) corecrypto.KeyPair {
	if id == "" {
		hash := sha256.Sum256(publicKey)
		id = hex.EncodeToString(hash[:8])
	}
	return &publicKeyOnlyEd25519{publicKey: publicKey, id: id}
}

// publicKeyOnlySecp256k1 wraps a Secp256k1 public key for verification only.
type publicKeyOnlySecp256k1 struct {
	publicKey *secp256k1.PublicKey
	id        string
}

func (pk *publicKeyOnlySecp256k1) PublicKey() crypto.PublicKey {
	return pk.publicKey.ToECDSA()
}

func (pk *publicKeyOnlySecp256k1) PrivateKey() crypto.PrivateKey {
	return nil
}

func (pk *publicKeyOnlySecp256k1) Type() corecrypto.KeyType {
	return corecrypto.KeyTypeSecp256k1
}

func (pk *publicKeyOnlySecp256k1) Sign(message []byte) ([]byte, error) {
	return nil, errors.New("cannot sign with public key only")
}

func (pk *publicKeyOnlySecp256k1) Verify(message, signature []byte) error {
	hash := sha256.Sum256(message)
	r, s, err := deserializeSignature(signature)
	if err != nil {
		return corecrypto.ErrInvalidSignature
	}
	if !ecdsa.Verify(pk.publicKey.ToECDSA(), hash[:], r, s) {
		return corecrypto.ErrInvalidSignature
	}
	return nil
}

func (pk *publicKeyOnlySecp256k1) ID() string {
	return pk.id
}

// NewPublicKeyOnlySecp256k1 wraps a peer's Secp256k1 public key for
// verification without holding any private key material.
func NewPublicKeyOnlySecp256k1(publicKey *secp256k1.PublicKey, id string) corecrypto.KeyPair {
	if id == "" {
		hash := sha256.Sum256(publicKey.SerializeCompressed())
		id = hex.EncodeToString(hash[:8])
	}
	return &publicKeyOnlySecp256k1{publicKey: publicKey, id: id}
}
