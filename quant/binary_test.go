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

package quant

import (
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

func TestBinaryQuantizeSignBits(t *testing.T) {
	center := []float32{0, 0, 0, 0}
	vec := []float32{1, -1, 0, 2}
	code := BinaryQuantize(vec, center)
	if len(code) != BinaryCodeSize(4) {
		t.Fatalf("code length = %d, want %d", len(code), BinaryCodeSize(4))
	}
	// bit i set iff vec[i] >= center[i]
	want := []bool{true, false, true, true}
	for i, w := range want {
		got := code[i/8]&(1<<uint(i%8)) != 0
		if got != w {
			t.Fatalf("bit %d = %v, want %v", i, got, w)
		}
	}
}

func TestHammingDistanceIdentical(t *testing.T) {
	a := []byte{0xFF, 0x0F}
	if d := HammingDistance(a, a); d != 0 {
		t.Fatalf("HammingDistance(a, a) = %d, want 0", d)
	}
}

func TestHammingDistanceAllBitsFlipped(t *testing.T) {
	a := []byte{0x00}
	b := []byte{0xFF}
	if d := HammingDistance(a, b); d != 8 {
		t.Fatalf("HammingDistance = %d, want 8", d)
	}
}

func TestBinaryIndexAddRemoveSearch(t *testing.T) {
	idx := NewBinaryIndex(3, nil)
	vectors := map[uint64][]float32{
		1: {1, 1, 1},
		2: {-1, -1, -1},
		3: {1, 1, -1},
	}
	for key, v := range vectors {
		if err := idx.Add(key, v); err != nil {
			t.Fatalf("Add(%d): %v", key, err)
		}
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}

	result, err := idx.Search([]float32{1, 1, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Keys) != 1 || result.Keys[0] != 1 {
		t.Fatalf("Search top-1 = %v, want [1]", result.Keys)
	}

	idx.Remove(1)
	if idx.Len() != 2 {
		t.Fatalf("Len() after Remove = %d, want 2", idx.Len())
	}
	if _, ok := idx.keyToIdx[1]; ok {
		t.Fatalf("key 1 still present after Remove")
	}
}

func TestBinaryIndexAddDimensionMismatch(t *testing.T) {
	idx := NewBinaryIndex(3, nil)
	if err := idx.Add(1, []float32{1, 2}); err == nil {
		t.Fatalf("Add with wrong dimension: want error, got nil")
	}
}

func TestBinaryIndexSearchWithRerankOrdersByExactMetric(t *testing.T) {
	idx := NewBinaryIndex(2, []float32{0, 0})
	_ = idx.Add(1, []float32{10, 0})
	_ = idx.Add(2, []float32{1, 0})
	_ = idx.Add(3, []float32{-10, 0})

	result, err := idx.SearchWithRerank([]float32{1, 0}, 1, 3, ferrotypes.Euclidean)
	if err != nil {
		t.Fatalf("SearchWithRerank: %v", err)
	}
	if len(result.Keys) != 1 || result.Keys[0] != 2 {
		t.Fatalf("nearest by exact euclidean = %v, want [2]", result.Keys)
	}
}

func TestBinaryIndexSearchEmpty(t *testing.T) {
	idx := NewBinaryIndex(2, nil)
	result, err := idx.Search([]float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(result.Keys) != 0 {
		t.Fatalf("Search on empty index returned %d keys", len(result.Keys))
	}
}
