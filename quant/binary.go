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

// Package quant implements the residual quantization codes used to
// compress posting-list vectors: a 1-bit sign code for cheap Hamming
// candidate generation and a 4-bit ray-walk grid code for a tighter
// distance estimate without paying for full-precision rerank.
package quant

import (
	"math/bits"
	"sort"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// BinaryCodeSize returns the number of bytes needed to hold a sign
// code for the given dimensionality.
func BinaryCodeSize(dimensions int) int {
	return (dimensions + 7) / 8
}

// BinaryQuantize encodes vector relative to center: bit i is 1 when
// vector[i] >= center[i], 0 otherwise.
func BinaryQuantize(vector, center []float32) []byte {
	code := make([]byte, BinaryCodeSize(len(vector)))
	for i, v := range vector {
		if v >= center[i] {
			code[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return code
}

// HammingDistance counts differing bits between two equal-length codes.
func HammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	total := 0
	for i := 0; i < n; i++ {
		total += bits.OnesCount8(a[i] ^ b[i])
	}
	return total
}

// BinaryIndex is a flat store of sign-quantized codes plus their raw
// vectors, searched by brute-force Hamming distance with an optional
// exact-distance rerank stage.
type BinaryIndex struct {
	dimensions int
	center     []float32
	keys       []uint64
	codes      [][]byte
	raw        [][]float32
	keyToIdx   map[uint64]int
}

func NewBinaryIndex(dimensions int, center []float32) *BinaryIndex {
	if center == nil {
		center = make([]float32, dimensions)
	}
	return &BinaryIndex{
		dimensions: dimensions,
		center:     center,
		keyToIdx:   make(map[uint64]int),
	}
}

func (b *BinaryIndex) CodeSize() int { return BinaryCodeSize(b.dimensions) }

func (b *BinaryIndex) Add(key uint64, vector []float32) error {
	if len(vector) != b.dimensions {
		return ferrodberrs.New(ferrodberrs.InvalidArgument, "quant: expected dimension %d, got %d", b.dimensions, len(vector))
	}
	code := BinaryQuantize(vector, b.center)
	if idx, ok := b.keyToIdx[key]; ok {
		b.codes[idx] = code
		b.raw[idx] = append([]float32(nil), vector...)
		return nil
	}
	idx := len(b.keys)
	b.keys = append(b.keys, key)
	b.codes = append(b.codes, code)
	b.raw = append(b.raw, append([]float32(nil), vector...))
	b.keyToIdx[key] = idx
	return nil
}

func (b *BinaryIndex) Remove(key uint64) {
	idx, ok := b.keyToIdx[key]
	if !ok {
		return
	}
	last := len(b.keys) - 1
	if idx != last {
		b.keys[idx] = b.keys[last]
		b.codes[idx] = b.codes[last]
		b.raw[idx] = b.raw[last]
		b.keyToIdx[b.keys[idx]] = idx
	}
	b.keys = b.keys[:last]
	b.codes = b.codes[:last]
	b.raw = b.raw[:last]
	delete(b.keyToIdx, key)
}

func (b *BinaryIndex) Len() int { return len(b.keys) }

// SearchResult pairs candidate keys with the distance used to rank
// them.
type SearchResult struct {
	Keys      []uint64
	Distances []float64
}

// Search ranks every stored code by Hamming distance to query and
// returns the closest count.
func (b *BinaryIndex) Search(query []float32, count int) (SearchResult, error) {
	if len(query) != b.dimensions {
		return SearchResult{}, ferrodberrs.New(ferrodberrs.InvalidArgument, "quant: expected dimension %d, got %d", b.dimensions, len(query))
	}
	if len(b.keys) == 0 || count == 0 {
		return SearchResult{}, nil
	}
	qc := BinaryQuantize(query, b.center)

	type cand struct {
		key  uint64
		dist int
	}
	cands := make([]cand, len(b.keys))
	for i, code := range b.codes {
		cands[i] = cand{key: b.keys[i], dist: HammingDistance(qc, code)}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if count > len(cands) {
		count = len(cands)
	}
	cands = cands[:count]

	out := SearchResult{Keys: make([]uint64, count), Distances: make([]float64, count)}
	for i, c := range cands {
		out.Keys[i] = c.key
		out.Distances[i] = float64(c.dist)
	}
	return out, nil
}

// SearchWithRerank gathers count*oversampleFactor Hamming candidates,
// then reranks them by exact metric on the raw vectors and truncates
// to count. This is the two-stage retrieval path used when a segment
// reader needs tighter recall than pure Hamming search gives.
func (b *BinaryIndex) SearchWithRerank(query []float32, count, oversampleFactor int, metric ferrotypes.DistanceMetric) (SearchResult, error) {
	if len(query) != b.dimensions {
		return SearchResult{}, ferrodberrs.New(ferrodberrs.InvalidArgument, "quant: expected dimension %d, got %d", b.dimensions, len(query))
	}
	if len(b.keys) == 0 || count == 0 {
		return SearchResult{}, nil
	}

	qc := BinaryQuantize(query, b.center)
	numCandidates := count * oversampleFactor
	if numCandidates > len(b.keys) {
		numCandidates = len(b.keys)
	}

	type hcand struct {
		idx  int
		dist int
	}
	hcands := make([]hcand, len(b.keys))
	for i, code := range b.codes {
		hcands[i] = hcand{idx: i, dist: HammingDistance(qc, code)}
	}
	sort.Slice(hcands, func(i, j int) bool { return hcands[i].dist < hcands[j].dist })
	hcands = hcands[:numCandidates]

	type rcand struct {
		key  uint64
		dist float64
	}
	rcands := make([]rcand, len(hcands))
	for i, h := range hcands {
		rcands[i] = rcand{key: b.keys[h.idx], dist: ferrotypes.Distance(metric, query, b.raw[h.idx])}
	}
	sort.Slice(rcands, func(i, j int) bool { return rcands[i].dist < rcands[j].dist })
	if count > len(rcands) {
		count = len(rcands)
	}
	rcands = rcands[:count]

	out := SearchResult{Keys: make([]uint64, count), Distances: make([]float64, count)}
	for i, c := range rcands {
		out.Keys[i] = c.key
		out.Distances[i] = c.dist
	}
	return out, nil
}
