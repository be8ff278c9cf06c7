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

package spann

import (
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

func TestHNSWIndexEmptySearchReturnsNil(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	if out := h.Search([]float32{0, 0}, 5); out != nil {
		t.Fatalf("Search on empty index = %v, want nil", out)
	}
}

func TestHNSWIndexInsertAndLen(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	h.Insert(1, []float32{0, 0})
	h.Insert(2, []float32{10, 10})
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
}

func TestHNSWIndexSearchReturnsClosestFirst(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	h.Insert(1, []float32{0, 0})
	h.Insert(2, []float32{5, 5})
	h.Insert(3, []float32{100, 100})

	results := h.Search([]float32{0.1, 0.1}, 2)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].id != 1 {
		t.Fatalf("closest id = %d, want 1", results[0].id)
	}
	if results[0].dist > results[1].dist {
		t.Fatalf("results not sorted ascending by distance: %+v", results)
	}
}

func TestHNSWIndexSearchTruncatesToTopK(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	for i := uint64(0); i < 20; i++ {
		h.Insert(i, []float32{float32(i), float32(i)})
	}
	results := h.Search([]float32{0, 0}, 3)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
}

func TestHNSWIndexVectorLookup(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	h.Insert(7, []float32{1, 2})
	v, ok := h.Vector(7)
	if !ok || v[0] != 1 || v[1] != 2 {
		t.Fatalf("Vector(7) = (%v,%v), want ([1,2],true)", v, ok)
	}
	if _, ok := h.Vector(999); ok {
		t.Fatalf("Vector on a missing id should report ok=false")
	}
}

func TestHNSWIndexRemoveDropsNodeAndReassignsEntry(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	h.Insert(1, []float32{0, 0})
	h.Insert(2, []float32{5, 5})
	h.Remove(1)
	if h.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", h.Len())
	}
	if _, ok := h.Vector(1); ok {
		t.Fatalf("removed node should no longer be reachable")
	}
	// index should still be searchable through the remaining node.
	results := h.Search([]float32{5, 5}, 1)
	if len(results) != 1 || results[0].id != 2 {
		t.Fatalf("Search after Remove = %+v, want only id 2", results)
	}
}

func TestHNSWIndexRemoveAllNodesLeavesEmptySearch(t *testing.T) {
	h := NewHNSWIndex(2, ferrotypes.Euclidean, DefaultHNSWConfig())
	h.Insert(1, []float32{0, 0})
	h.Remove(1)
	if out := h.Search([]float32{0, 0}, 1); out != nil {
		t.Fatalf("Search after removing every node = %v, want nil", out)
	}
}
