// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 the mitsuaire authors

package cn105

// Checksum computes the CN105 frame checksum over the given bytes, which
// must cover everything from the sync byte through the last payload byte.
// The checksum is 0xFC minus the byte sum, modulo 256.
func Checksum(data []byte) byte {
	sum := byte(0)
	for _, b := range data {
		sum += b
	}
	return SyncByte - sum
}
