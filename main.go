// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 the mitsuaire authors
//
// Mitsuaire - Mitsubishi CN105 heat pump bridge
//
// Bridges the CN105 serial protocol spoken by Mitsubishi indoor units to a
// network-addressable control surface, with monitoring and debugging tools.

package main

import (
	"os"

	"github.com/mitsuaire/mitsuaire/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
