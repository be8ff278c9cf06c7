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

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// ReaderConfig mirrors ferrotypes.SPANNParams' search-time knobs.
type ReaderConfig struct {
	SearchNprobe        int
	VectorRerankFactor  int
	CentroidRerankFactor int
	Metric              ferrotypes.DistanceMetric
}

// Reader searches a Writer's committed state: centroid stage via HNSW,
// cluster stage by scoring quantized posting-list members, optional
// exact rerank supplied by the caller (the record segment holds raw
// embeddings, not this package).
type Reader struct {
	cfg ReaderConfig
	w   *Writer
}

func NewReader(w *Writer, cfg ReaderConfig) *Reader {
	return &Reader{cfg: cfg, w: w}
}

// ScoredKey is one candidate result.
type ScoredKey struct {
	Key      uint64
	Distance float64
}

// Search runs the two-stage SPANN search and returns up to
// k*vector_rerank_factor candidates ranked by the quantized distance
// estimator, ready for an optional exact rerank by the caller.
func (r *Reader) Search(query []float32, k int) []ScoredKey {
	nprobe := r.cfg.SearchNprobe
	if nprobe < 1 {
		nprobe = 1
	}
	centroids := r.w.Centroids().Search(query, nprobe)

	wantCandidates := k
	if r.cfg.VectorRerankFactor > 1 {
		wantCandidates = k * r.cfg.VectorRerankFactor
	}

	var scored []ScoredKey
	seen := make(map[uint64]bool)
	for _, c := range centroids {
		pl, ok := r.w.PostingListFor(c.id)
		if !ok {
			continue
		}
		for _, m := range pl.Members {
			if seen[m.Key] {
				continue
			}
			if !r.w.Versions().IsCurrent(m.Key, m.Version) {
				continue // stale tuple, superseded by a newer version
			}
			seen[m.Key] = true
			dist := m.Code.DistanceToQuery(r.cfg.Metric, pl.Centroid, query)
			scored = append(scored, ScoredKey{Key: m.Key, Distance: dist})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if wantCandidates > 0 && len(scored) > wantCandidates {
		scored = scored[:wantCandidates]
	}
	return scored
}

// Rerank recomputes exact distance for candidates against their raw
// embeddings (fetched by the caller from the record segment) and
// truncates to k.
func Rerank(candidates []ScoredKey, rawByKey map[uint64][]float32, query []float32, metric ferrotypes.DistanceMetric, k int) []ScoredKey {
	out := make([]ScoredKey, 0, len(candidates))
	for _, c := range candidates {
		raw, ok := rawByKey[c.Key]
		if !ok {
			continue
		}
		out = append(out, ScoredKey{Key: c.Key, Distance: ferrotypes.Distance(metric, query, raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
