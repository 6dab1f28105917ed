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

import "fmt"

// VerifyItem is one (key, message, signature) check for BatchVerify.
type VerifyItem struct {
	Key       KeyPair
	Message   []byte
	Signature []byte
}

// BatchVerify checks every item in order, short-circuiting on the
// first verification failure. It is semantically equivalent to the
// conjunction of calling Key.Verify on each item individually: a
// convenience for callers (e.g. loading a batch of previously-signed
// entries from crypto/storage) that need one pass/fail result rather
// than per-item errors.
func BatchVerify(items []VerifyItem) error {
	for i, item := range items {
		if err := item.Key.Verify(item.Message, item.Signature); err != nil {
			return fmt.Errorf("crypto: batch verify failed at item %d: %w", i, err)
		}
	}
	return nil
}
