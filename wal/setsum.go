/*
Copyright (C) 2026  ferrodb authors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package wal implements the write-ahead log: immutable parquet
// fragments in object storage plus a coalesced manifest that tracks
// fragment membership with conditional-PUT-on-ETag serialization
// between contending writers.
package wal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Setsum is a commutative 32-byte checksum: XOR is associative and
// commutative, so a manifest's setsum can be recomputed incrementally
// as fragments are added or dropped without rehashing the whole log.
type Setsum [32]byte

// XOR returns a ^ b byte-wise.
func (a Setsum) XOR(b Setsum) Setsum {
	var out Setsum
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func (s Setsum) String() string { return hex.EncodeToString(s[:]) }

func (s Setsum) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Setsum) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	copy(s[:], raw)
	return nil
}

// ComputeFragmentSetsum content-addresses a fragment by hashing its
// encoded parquet bytes. Two fragments with identical content (same
// offsets, timestamps and bodies) always collapse to the same setsum.
func ComputeFragmentSetsum(encoded []byte) Setsum {
	return sha256.Sum256(encoded)
}

// XORAll folds setsums left to right; the result is independent of
// order because XOR is commutative and associative.
func XORAll(setsums []Setsum) Setsum {
	var out Setsum
	for _, s := range setsums {
		out = out.XOR(s)
	}
	return out
}
