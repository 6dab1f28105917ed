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
	"fmt"

	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/receiver/echo"
	"github.com/neatsys-bench/neatcore/runtime"
)

// receiverFactory builds a runtime.Receiver and registers its message
// Kinds into registry. One entry per Config.Protocol value this binary
// knows how to host.
type receiverFactory func(table *identity.Table, key crypto.KeyPair, registry *message.Registry) (runtime.Receiver, error)

// receiverFactories is the control surface's protocol registry:
// "echo" is the only fixture shipped with this repo (see receiver/echo);
// a deployment wiring a real protocol registers its own factory here in
// a fork of this file rather than this binary growing a plugin system.
var receiverFactories = map[string]receiverFactory{
	"echo": func(table *identity.Table, key crypto.KeyPair, registry *message.Registry) (runtime.Receiver, error) {
		echo.RegisterInto(registry)
		return echo.New(table, key, message.NewBinaryCodec()), nil
	},
}

func buildReceiver(protocol string, table *identity.Table, key crypto.KeyPair, registry *message.Registry) (runtime.Receiver, error) {
	factory, ok := receiverFactories[protocol]
	if !ok {
		return nil, fmt.Errorf("neatcored: unknown protocol %q", protocol)
	}
	return factory(table, key, registry)
}
