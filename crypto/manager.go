// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"fmt"
)

// Manager provides centralized management of cryptographic operations.
type Manager struct {
	storage KeyStorage
}

// NewManager creates a new crypto manager
func NewManager() *Manager {
	return &Manager{
		storage: NewMemoryKeyStorage(),
	}
}

// SetStorage sets the key storage backend
func (m *Manager) SetStorage(storage KeyStorage) {
	m.storage = storage
}

// GenerateKeyPair generates a new key pair of the specified type. The
// HMAC-pairwise family has no standalone key pair of its own: it is
// derived per-peer from an X25519 key pair via DerivePairwiseMAC.
func (m *Manager) GenerateKeyPair(keyType KeyType) (KeyPair, error) {
	switch keyType {
	case KeyTypeEd25519:
		return NewEd25519KeyPair()
	case KeyTypeSecp256k1:
		return NewSecp256k1KeyPair()
	case KeyTypeX25519:
		return NewX25519KeyPair()
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}
}

// DerivePairwiseMAC derives the HMAC-pairwise KeyPair shared between a
// local X25519 key pair and a peer's raw X25519 public key bytes.
func (m *Manager) DerivePairwiseMAC(self KeyPair, peerPub []byte) (KeyPair, error) {
	if self.Type() != KeyTypeX25519 {
		return nil, fmt.Errorf("pairwise MAC derivation requires an X25519 key pair, got %s", self.Type())
	}
	return NewPairwiseHMAC(self, peerPub)
}

// StoreKeyPair stores a key pair
func (m *Manager) StoreKeyPair(keyPair KeyPair) error {
	return m.storage.Store(keyPair.ID(), keyPair)
}

// LoadKeyPair loads a key pair by ID
func (m *Manager) LoadKeyPair(id string) (KeyPair, error) {
	return m.storage.Load(id)
}

// DeleteKeyPair deletes a key pair by ID
func (m *Manager) DeleteKeyPair(id string) error {
	return m.storage.Delete(id)
}

// ListKeyPairs lists all stored key pair IDs
func (m *Manager) ListKeyPairs() ([]string, error) {
	return m.storage.List()
}
