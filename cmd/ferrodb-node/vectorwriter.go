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

package main

import (
	"hash/fnv"
	"sync"

	"github.com/ferrodb/ferrodb/segment"
	"github.com/ferrodb/ferrodb/spann"
)

// fnvIDMapper assigns a stable uint64 point key to every string record
// id by hashing it; segment.Compactor never needs the reverse mapping,
// so a collision only risks merging two ids into one vector-index
// point, which a real deployment would instead back with a persisted
// bidirectional table.
type fnvIDMapper struct{}

func (fnvIDMapper) KeyFor(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

// spannVectorWriter adapts spann.Writer to segment.VectorWriter,
// translating Commit's Flusher into the name->id set the compactor
// publishes, and keeping two side tables: raw embeddings (for the
// query orchestrator's exact-rerank stage) and a uint32 ordinal per
// uint64 point key, since query.ScoredOffset carries a uint32 id but
// the vector index's point keys are uint64 hashes of the record id.
type spannVectorWriter struct {
	w *spann.Writer

	mu        sync.RWMutex
	raw       map[uint64][]float32
	ordinalOf map[uint64]uint32
	keyOf     map[uint32]uint64
	next      uint32
}

func newSpannVectorWriter(w *spann.Writer) *spannVectorWriter {
	return &spannVectorWriter{
		w: w, raw: make(map[uint64][]float32),
		ordinalOf: make(map[uint64]uint32), keyOf: make(map[uint32]uint64),
	}
}

func (s *spannVectorWriter) Add(key uint64, embedding []float32) error {
	if err := s.w.Add(key, embedding); err != nil {
		return err
	}
	s.mu.Lock()
	s.raw[key] = append([]float32(nil), embedding...)
	if _, ok := s.ordinalOf[key]; !ok {
		ord := s.next
		s.next++
		s.ordinalOf[key] = ord
		s.keyOf[ord] = key
	}
	s.mu.Unlock()
	return nil
}

func (s *spannVectorWriter) Delete(key uint64) {
	s.w.Delete(key)
	s.mu.Lock()
	delete(s.raw, key)
	if ord, ok := s.ordinalOf[key]; ok {
		delete(s.ordinalOf, key)
		delete(s.keyOf, ord)
	}
	s.mu.Unlock()
}

func (s *spannVectorWriter) Commit() segment.FlushIDs {
	f := s.w.Commit()
	return segment.FlushIDs{IDs: map[string]uint64{
		"hnsw_centroids": f.HNSWID,
		"posting_lists":  f.PostingListID,
		"version_map":    f.VersionMapID,
	}}
}

func (s *spannVectorWriter) RawEmbedding(key uint64) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.raw[key]
	return v, ok
}

func (s *spannVectorWriter) OrdinalFor(key uint64) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord, ok := s.ordinalOf[key]
	return ord, ok
}

func (s *spannVectorWriter) KeyForOrdinal(ord uint32) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keyOf[ord]
	return key, ok
}
