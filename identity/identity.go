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

// Package identity holds the static participant table a Dispatch is
// constructed with: the mapping from a numeric index to a network
// address and public key, fixed for the lifetime of the Dispatch.
package identity

import (
	"fmt"
	"sort"

	"github.com/neatsys-bench/neatcore/crypto"
)

// Index is a participant's stable numeric identity.
type Index uint32

// Identity is one participant's immutable address-book entry.
type Identity struct {
	Index     Index
	Address   string
	PublicKey []byte
	KeyType   crypto.KeyType
}

// Table is the immutable index -> Identity mapping installed at
// Dispatch construction. It additionally remembers which index is
// "self" so Context.Self and Broadcast's self-exclusion have a home.
type Table struct {
	self    Index
	members map[Index]Identity
	order   []Index
}

// NewTable builds a Table from members, validating that self appears
// exactly once and that no two members share an Index.
func NewTable(self Index, members []Identity) (*Table, error) {
	t := &Table{
		self:    self,
		members: make(map[Index]Identity, len(members)),
		order:   make([]Index, 0, len(members)),
	}

	for _, m := range members {
		if _, exists := t.members[m.Index]; exists {
			return nil, fmt.Errorf("identity: duplicate index %d in table", m.Index)
		}
		t.members[m.Index] = m
		t.order = append(t.order, m.Index)
	}

	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })

	if _, ok := t.members[self]; !ok {
		return nil, fmt.Errorf("identity: self index %d not present in table", self)
	}

	return t, nil
}

// Self returns the table's own index.
func (t *Table) Self() Index {
	return t.self
}

// SelfIdentity returns the full Identity entry for Self().
func (t *Table) SelfIdentity() Identity {
	return t.members[t.self]
}

// Lookup returns the Identity for idx, or false if idx is not a member.
func (t *Table) Lookup(idx Index) (Identity, bool) {
	id, ok := t.members[idx]
	return id, ok
}

// Len returns the number of participants, including self.
func (t *Table) Len() int {
	return len(t.members)
}

// Each calls fn once for every member in ascending Index order,
// skipping self. Context.Broadcast uses this to enumerate send targets.
func (t *Table) Each(fn func(Identity)) {
	for _, idx := range t.order {
		if idx == t.self {
			continue
		}
		fn(t.members[idx])
	}
}

// All calls fn once for every member in ascending Index order,
// including self.
func (t *Table) All(fn func(Identity)) {
	for _, idx := range t.order {
		fn(t.members[idx])
	}
}
