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

func testWriterConfig() WriterConfig {
	return WriterConfig{
		SplitThreshold:        4,
		ReassignNeighborCount: 2,
		Metric:                ferrotypes.Euclidean,
		SearchEpsilon:         0,
	}
}

func TestWriterAddRejectsWrongDimension(t *testing.T) {
	w := NewWriter(3, testWriterConfig(), DefaultHNSWConfig())
	if err := w.Add(1, []float32{1, 2}); err == nil {
		t.Fatalf("Add with wrong dimension should fail")
	}
}

func TestWriterAddBootstrapsFirstHead(t *testing.T) {
	w := NewWriter(2, testWriterConfig(), DefaultHNSWConfig())
	if err := w.Add(1, []float32{0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if w.Centroids().Len() != 1 {
		t.Fatalf("Centroids().Len() = %d, want 1 (bootstrap head)", w.Centroids().Len())
	}
}

func TestWriterAddRoutesToNearestHead(t *testing.T) {
	w := NewWriter(2, testWriterConfig(), DefaultHNSWConfig())
	for i := 0; i < 3; i++ {
		if err := w.Add(uint64(i), []float32{0, 0}); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	found := false
	for head := range w.postings {
		if len(w.postings[head].Members) == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a single posting list holding all 3 near-identical points")
	}
}

func TestWriterDeleteTombstonesAcrossPostingLists(t *testing.T) {
	w := NewWriter(2, testWriterConfig(), DefaultHNSWConfig())
	_ = w.Add(1, []float32{0, 0})
	_ = w.Add(2, []float32{0, 0})
	w.Delete(1)
	if w.Versions().Current(1) != 0 {
		t.Fatalf("Delete should clear the version map entry")
	}
	for _, pl := range w.postings {
		for _, m := range pl.Members {
			if m.Key == 1 {
				t.Fatalf("deleted key 1 still present in a posting list")
			}
		}
	}
}

func TestWriterSplitOnOverflowCreatesTwoHeads(t *testing.T) {
	cfg := testWriterConfig()
	cfg.SplitThreshold = 2
	w := NewWriter(2, cfg, DefaultHNSWConfig())
	// two well-separated clusters so split produces two clean heads.
	points := [][]float32{{0, 0}, {0, 1}, {100, 100}, {100, 101}}
	for i, p := range points {
		if err := w.Add(uint64(i), p); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	if w.Centroids().Len() < 2 {
		t.Fatalf("Centroids().Len() = %d, want at least 2 after a split", w.Centroids().Len())
	}
}

func TestWriterGarbageCollectDropsStaleAndEmptyHeads(t *testing.T) {
	w := NewWriter(2, testWriterConfig(), DefaultHNSWConfig())
	_ = w.Add(1, []float32{0, 0})
	w.Delete(1)
	w.GarbageCollect()
	if w.Centroids().Len() != 0 {
		t.Fatalf("Centroids().Len() = %d, want 0 once the only member is deleted", w.Centroids().Len())
	}
}

func TestWriterCommitReportsMaxHeadID(t *testing.T) {
	w := NewWriter(2, testWriterConfig(), DefaultHNSWConfig())
	_ = w.Add(1, []float32{0, 0})
	flush := w.Commit()
	if flush.MaxHeadID == 0 {
		t.Fatalf("Commit().MaxHeadID = 0, want a positive head id")
	}
}
