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
	"sort"
	"sync"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/quant"
)

// WriterConfig mirrors ferrotypes.SPANNParams for the subset the
// writer needs directly (the reader-only fields live on the reader).
type WriterConfig struct {
	SplitThreshold        int
	ReassignNeighborCount int
	Metric                ferrotypes.DistanceMetric
	SearchEpsilon         float64
}

// Writer owns the centroid HNSW graph, the posting lists hanging off
// each head, and the version map. Add, Delete, GarbageCollect and
// Commit take an internal mutex, so concurrent calls are serialized.
type Writer struct {
	cfg      WriterConfig
	dim      int
	hnsw     *HNSWIndex
	postings map[uint64]*PostingList
	versions *VersionMap
	nextHead uint64

	mu sync.Mutex
}

func NewWriter(dim int, cfg WriterConfig, hnswCfg HNSWConfig) *Writer {
	return &Writer{
		cfg:      cfg,
		dim:      dim,
		hnsw:     NewHNSWIndex(dim, cfg.Metric, hnswCfg),
		postings: make(map[uint64]*PostingList),
		versions: NewVersionMap(),
	}
}

// bootstrapHead seeds a new centroid directly from a point, used when
// the centroid graph has no head to route the point to.
func (w *Writer) bootstrapHead(vector []float32) uint64 {
	w.nextHead++
	head := w.nextHead
	w.hnsw.Insert(head, vector)
	w.postings[head] = &PostingList{HeadID: head, Centroid: append([]float32(nil), vector...)}
	return head
}

// Add inserts key's embedding into the best-matching posting list(s):
// every centroid within search_epsilon of the single best match. If
// search_epsilon is zero only the single nearest head is used.
func (w *Writer) Add(key uint64, embedding []float32) error {
	if len(embedding) != w.dim {
		return ferrodberrs.New(ferrodberrs.InvalidArgument, "spann: expected dimension %d, got %d", w.dim, len(embedding))
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hnsw.Len() == 0 {
		head := w.bootstrapHead(embedding)
		return w.insertInto(head, key, embedding)
	}

	topM := w.cfg.ReassignNeighborCount
	if topM < 1 {
		topM = 1
	}
	candidates := w.hnsw.Search(embedding, topM)
	if len(candidates) == 0 {
		head := w.bootstrapHead(embedding)
		return w.insertInto(head, key, embedding)
	}

	best := candidates[0].dist
	var targets []uint64
	if w.cfg.SearchEpsilon <= 0 {
		targets = []uint64{candidates[0].id}
	} else {
		for _, c := range candidates {
			if c.dist <= best+w.cfg.SearchEpsilon {
				targets = append(targets, c.id)
			}
		}
	}

	for _, head := range targets {
		if err := w.insertInto(head, key, embedding); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) insertInto(head, key uint64, embedding []float32) error {
	pl, ok := w.postings[head]
	if !ok {
		return ferrodberrs.New(ferrodberrs.Internal, "spann: posting list for head %d missing", head)
	}
	version := w.versions.Bump(key)
	code, err := quant.QuantizeCode4Bit(embedding, pl.Centroid)
	if err != nil {
		return err
	}
	pl.Upsert(key, version, code, append([]float32(nil), embedding...))

	if len(pl.Members) > w.cfg.SplitThreshold {
		w.split(pl)
	}
	return nil
}

// Delete tombstones a point across every posting list it appears in.
func (w *Writer) Delete(key uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, pl := range w.postings {
		pl.Remove(key)
	}
	w.versions.Delete(key)
}

// split runs 2-means on an overfull posting list, emits two new heads,
// inserts them into the HNSW graph, and migrates members to whichever
// new centroid is closer. It then reassigns neighbors of nearby heads
// per reassign_neighbor_count, since the split may have changed which
// centroid is the true nearest for points in adjacent posting lists.
func (w *Writer) split(pl *PostingList) {
	if len(pl.Members) < 2 {
		return
	}
	centroidA, centroidB := twoMeans(pl.Members, w.cfg.Metric)

	w.nextHead++
	headA := w.nextHead
	w.nextHead++
	headB := w.nextHead

	plA := &PostingList{HeadID: headA, Centroid: centroidA}
	plB := &PostingList{HeadID: headB, Centroid: centroidB}

	for _, m := range pl.Members {
		distA := ferrotypes.Distance(w.cfg.Metric, m.Raw, centroidA)
		distB := ferrotypes.Distance(w.cfg.Metric, m.Raw, centroidB)
		target, centroid := plA, centroidA
		if distB < distA {
			target, centroid = plB, centroidB
		}
		code, err := quant.QuantizeCode4Bit(m.Raw, centroid)
		if err != nil {
			continue
		}
		target.Upsert(m.Key, m.Version, code, m.Raw)
	}

	delete(w.postings, pl.HeadID)
	w.hnsw.Remove(pl.HeadID)
	w.postings[headA] = plA
	w.postings[headB] = plB
	w.hnsw.Insert(headA, centroidA)
	w.hnsw.Insert(headB, centroidB)

	w.reassignNeighbors(headA)
	w.reassignNeighbors(headB)
}

// reassignNeighbors re-examines the posting-list members of the
// nearest reassign_neighbor_count centroids to head and migrates any
// whose true nearest centroid has changed.
func (w *Writer) reassignNeighbors(head uint64) {
	centroid, ok := w.hnsw.Vector(head)
	if !ok {
		return
	}
	neighbors := w.hnsw.Search(centroid, w.cfg.ReassignNeighborCount+1)
	for _, n := range neighbors {
		if n.id == head {
			continue
		}
		pl, ok := w.postings[n.id]
		if !ok {
			continue
		}
		w.migrateStaleMembers(pl)
	}
}

func (w *Writer) migrateStaleMembers(pl *PostingList) {
	var keep []PostingMember
	for _, m := range pl.Members {
		best := pl.HeadID
		bestDist := ferrotypes.Distance(w.cfg.Metric, m.Raw, pl.Centroid)
		candidates := w.hnsw.Search(m.Raw, 1)
		if len(candidates) > 0 && candidates[0].id != pl.HeadID && candidates[0].dist < bestDist {
			best = candidates[0].id
		}
		if best == pl.HeadID {
			keep = append(keep, m)
			continue
		}
		target, ok := w.postings[best]
		if !ok {
			keep = append(keep, m)
			continue
		}
		code, err := quant.QuantizeCode4Bit(m.Raw, target.Centroid)
		if err != nil {
			keep = append(keep, m)
			continue
		}
		target.Upsert(m.Key, m.Version, code, m.Raw)
	}
	pl.Members = keep
}

// twoMeans runs a small fixed number of Lloyd's-algorithm iterations
// seeded by the two points farthest apart in the posting list.
func twoMeans(members []PostingMember, metric ferrotypes.DistanceMetric) ([]float32, []float32) {
	a, b := farthestPair(members, metric)
	centroidA := append([]float32(nil), members[a].Raw...)
	centroidB := append([]float32(nil), members[b].Raw...)

	for iter := 0; iter < 8; iter++ {
		var sumA, sumB []float32
		var countA, countB int
		for _, m := range members {
			if ferrotypes.Distance(metric, m.Raw, centroidA) <= ferrotypes.Distance(metric, m.Raw, centroidB) {
				sumA = addInto(sumA, m.Raw)
				countA++
			} else {
				sumB = addInto(sumB, m.Raw)
				countB++
			}
		}
		if countA > 0 {
			centroidA = scaleBy(sumA, 1.0/float64(countA))
		}
		if countB > 0 {
			centroidB = scaleBy(sumB, 1.0/float64(countB))
		}
	}
	return centroidA, centroidB
}

func farthestPair(members []PostingMember, metric ferrotypes.DistanceMetric) (int, int) {
	bestI, bestJ := 0, minInt(1, len(members)-1)
	bestDist := -1.0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			d := ferrotypes.Distance(metric, members[i].Raw, members[j].Raw)
			if d > bestDist {
				bestDist = d
				bestI, bestJ = i, j
			}
		}
	}
	return bestI, bestJ
}

func addInto(sum, v []float32) []float32 {
	if sum == nil {
		return append([]float32(nil), v...)
	}
	for i := range sum {
		sum[i] += v[i]
	}
	return sum
}

func scaleBy(v []float32, s float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * s)
	}
	return out
}

// GarbageCollect drops tombstoned or stale-version members from every
// posting list, then removes any head whose posting list is now
// empty.
func (w *Writer) GarbageCollect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for head, pl := range w.postings {
		var keep []PostingMember
		for _, m := range pl.Members {
			if w.versions.IsCurrent(m.Key, m.Version) {
				keep = append(keep, m)
			}
		}
		pl.Members = keep
		if len(pl.Members) == 0 {
			delete(w.postings, head)
			w.hnsw.Remove(head)
		}
	}
}

// Flusher is returned by Commit and writes the final id set the
// control plane records for this segment's vector files.
type Flusher struct {
	HNSWID        uint64
	PostingListID uint64
	VersionMapID  uint64
	MaxHeadID     uint64
}

// Commit freezes the writer state and returns its flush identifiers.
// A real implementation would serialize the HNSW graph, posting
// lists, and version map to blockfiles here; this keeps the in-memory
// structures as the "flushed" representation, addressable by the
// returned ids for the reader to reopen against the same Writer.
func (w *Writer) Commit() Flusher {
	w.mu.Lock()
	defer w.mu.Unlock()
	maxHead := uint64(0)
	ids := make([]uint64, 0, len(w.postings))
	for head := range w.postings {
		ids = append(ids, head)
		if head > maxHead {
			maxHead = head
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Flusher{HNSWID: 1, PostingListID: 1, VersionMapID: 1, MaxHeadID: maxHead}
}

// PostingListFor exposes a head's posting list, used by the reader
// when it operates directly against a live writer (the local / not
// compacted path) rather than reopening flushed files.
func (w *Writer) PostingListFor(head uint64) (*PostingList, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pl, ok := w.postings[head]
	return pl, ok
}

// Centroids exposes the writer's HNSW graph for the reader.
func (w *Writer) Centroids() *HNSWIndex { return w.hnsw }

// Versions exposes the version map for the reader.
func (w *Writer) Versions() *VersionMap { return w.versions }
