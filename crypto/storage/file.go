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

package storage

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/crypto/keys"
)

// fileKeyStorage implements KeyStorage on the local filesystem. It stores
// raw private key bytes rather than an exported interchange format: the
// core has no key-export surface (no JWK/PEM), so a minimal
// type-tagged-hex encoding is the smallest format the three storable
// KeyTypes (Ed25519, Secp256k1, X25519) round-trip through.
type fileKeyStorage struct {
	directory string
	mu        sync.RWMutex
}

type keyFileData struct {
	Type corecrypto.KeyType `json:"type"`
	Key  string             `json:"key"`
	ID   string              `json:"id"`
}

// NewFileKeyStorage creates a key storage backend rooted at directory,
// creating it if necessary.
func NewFileKeyStorage(directory string) (corecrypto.KeyStorage, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key storage directory: %w", err)
	}
	return &fileKeyStorage{directory: directory}, nil
}

func validateKeyID(id string) error {
	if strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid key ID: %s", id)
	}
	return nil
}

func privateKeyBytes(kp corecrypto.KeyPair) ([]byte, error) {
	switch priv := kp.PrivateKey().(type) {
	case ed25519.PrivateKey:
		return priv, nil
	case *secp256k1.PrivateKey:
		return priv.Serialize(), nil
	case *ecdsa.PrivateKey:
		return priv.D.FillBytes(make([]byte, 32)), nil
	case *ecdh.PrivateKey:
		return priv.Bytes(), nil
	default:
		return nil, fmt.Errorf("cannot serialize key pair of type %s to file", kp.Type())
	}
}

func keyPairFromBytes(keyType corecrypto.KeyType, raw []byte, id string) (corecrypto.KeyPair, error) {
	switch keyType {
	case corecrypto.KeyTypeEd25519:
		return keys.NewEd25519KeyPair(ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), id)
	case corecrypto.KeyTypeSecp256k1:
		priv := secp256k1.PrivKeyFromBytes(raw)
		return keys.NewSecp256k1KeyPair(priv, id)
	case corecrypto.KeyTypeX25519:
		priv, err := ecdh.X25519().NewPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct X25519 key: %w", err)
		}
		return keys.NewX25519KeyPairFromKey(priv, id)
	default:
		return nil, fmt.Errorf("unsupported key type for file storage: %s", keyType)
	}
}

// Store stores a key pair with the given ID.
func (s *fileKeyStorage) Store(id string, keyPair corecrypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateKeyID(id); err != nil {
		return err
	}

	raw, err := privateKeyBytes(keyPair)
	if err != nil {
		return err
	}

	fileData := keyFileData{
		Type: keyPair.Type(),
		Key:  hex.EncodeToString(raw),
		ID:   keyPair.ID(),
	}

	jsonData, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}

	filename := filepath.Join(s.directory, id+".key")
	if err := os.WriteFile(filename, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Load loads a key pair by ID.
func (s *fileKeyStorage) Load(id string) (corecrypto.KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateKeyID(id); err != nil {
		return nil, err
	}

	filename := filepath.Join(s.directory, id+".key")
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, corecrypto.ErrKeyNotFound
	}

	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var fileData keyFileData
	if err := json.Unmarshal(jsonData, &fileData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key data: %w", err)
	}

	raw, err := hex.DecodeString(fileData.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key bytes: %w", err)
	}

	return keyPairFromBytes(fileData.Type, raw, fileData.ID)
}

// Delete removes a key pair by ID.
func (s *fileKeyStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateKeyID(id); err != nil {
		return err
	}

	filename := filepath.Join(s.directory, id+".key")
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return corecrypto.ErrKeyNotFound
	}
	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// List returns all stored key IDs in sorted order.
func (s *fileKeyStorage) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".key") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".key"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists checks if a key exists.
func (s *fileKeyStorage) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateKeyID(id); err != nil {
		return false
	}
	filename := filepath.Join(s.directory, id+".key")
	_, err := os.Stat(filename)
	return err == nil
}
