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

package main

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	corecrypto "github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/crypto/keys"
)

// keyPairFromHex reconstructs a signing KeyPair from hex-encoded raw
// private key bytes, the same reconstruction crypto/storage/file.go
// uses to read a key back off disk, duplicated here since the control
// surface receives its key material inline in a Config document rather
// than by storage ID.
func keyPairFromHex(keyType, hexKey, id string) (corecrypto.KeyPair, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("neatcored: decode private key hex: %w", err)
	}

	switch corecrypto.KeyType(keyType) {
	case corecrypto.KeyTypeEd25519:
		if len(raw) < ed25519.SeedSize {
			return nil, fmt.Errorf("neatcored: ed25519 private key too short")
		}
		return keys.NewEd25519KeyPair(ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), id)
	case corecrypto.KeyTypeSecp256k1:
		return keys.NewSecp256k1KeyPair(secp256k1.PrivKeyFromBytes(raw), id)
	case corecrypto.KeyTypeX25519:
		priv, err := ecdh.X25519().NewPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("neatcored: reconstruct X25519 key: %w", err)
		}
		return keys.NewX25519KeyPairFromKey(priv, id)
	default:
		return nil, fmt.Errorf("neatcored: unsupported key type %q", keyType)
	}
}
