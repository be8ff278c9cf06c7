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

// Package spann implements the SPANN centroid index: an in-process
// HNSW graph over posting-list heads, plus the writer and reader
// contracts that drive it with quantized posting-list bodies.
package spann

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// HNSWConfig tunes graph construction and search.
type HNSWConfig struct {
	M              int // max neighbors per node per layer
	EfConstruction int
	EfSearch       int
}

func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruction: 100, EfSearch: 64}
}

type hnswNode struct {
	id     uint64
	vector []float32
	// neighbors[layer] is the set of connected node ids at that layer.
	neighbors [][]uint64
}

// HNSWIndex is a layered proximity graph over centroid vectors, used
// by the SPANN writer to find the best posting-list heads for a new
// point and by the reader to find the top search_nprobe centroids for
// a query.
type HNSWIndex struct {
	cfg    HNSWConfig
	metric ferrotypes.DistanceMetric
	dim    int

	mu        sync.RWMutex
	nodes     map[uint64]*hnswNode
	entry     uint64
	hasEntry  bool
	maxLayer  int
	rng       *rand.Rand
	levelNorm float64
}

func NewHNSWIndex(dim int, metric ferrotypes.DistanceMetric, cfg HNSWConfig) *HNSWIndex {
	return &HNSWIndex{
		cfg:       cfg,
		metric:    metric,
		dim:       dim,
		nodes:     make(map[uint64]*hnswNode),
		rng:       rand.New(rand.NewSource(1)),
		levelNorm: 1.0 / math.Log(float64(maxInt(cfg.M, 2))),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (h *HNSWIndex) randomLevel() int {
	level := int(math.Floor(-math.Log(h.rng.Float64()+1e-12) * h.levelNorm))
	if level < 0 {
		level = 0
	}
	return level
}

func (h *HNSWIndex) distance(a, b []float32) float64 {
	return ferrotypes.Distance(h.metric, a, b)
}

// Insert adds or replaces a centroid vector under id.
func (h *HNSWIndex) Insert(id uint64, vector []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	level := h.randomLevel()
	node := &hnswNode{id: id, vector: append([]float32(nil), vector...), neighbors: make([][]uint64, level+1)}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entry = id
		h.hasEntry = true
		h.maxLayer = level
		return
	}

	entry := h.entry
	for lc := h.maxLayer; lc > level; lc-- {
		entry = h.greedyClosest(entry, vector, lc)
	}

	for lc := minInt(level, h.maxLayer); lc >= 0; lc-- {
		candidates := h.searchLayer(vector, entry, h.cfg.EfConstruction, lc)
		neighbors := selectNeighbors(candidates, h.cfg.M)
		node.neighbors[lc] = neighbors
		for _, nb := range neighbors {
			h.connect(nb, id, lc)
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}

	if level > h.maxLayer {
		h.maxLayer = level
		h.entry = id
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// connect adds a back-edge from `from` to `to` at layer, trimming to M
// neighbors by distance if the list overflows.
func (h *HNSWIndex) connect(from, to uint64, layer int) {
	node, ok := h.nodes[from]
	if !ok || layer >= len(node.neighbors) {
		return
	}
	node.neighbors[layer] = append(node.neighbors[layer], to)
	if len(node.neighbors[layer]) <= h.cfg.M {
		return
	}
	type scored struct {
		id   uint64
		dist float64
	}
	scoredList := make([]scored, 0, len(node.neighbors[layer]))
	for _, nid := range node.neighbors[layer] {
		if other, ok := h.nodes[nid]; ok {
			scoredList = append(scoredList, scored{id: nid, dist: h.distance(node.vector, other.vector)})
		}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist < scoredList[j].dist })
	if len(scoredList) > h.cfg.M {
		scoredList = scoredList[:h.cfg.M]
	}
	trimmed := make([]uint64, len(scoredList))
	for i, s := range scoredList {
		trimmed[i] = s.id
	}
	node.neighbors[layer] = trimmed
}

// Remove deletes a centroid node. Its neighbors lose the back-edge but
// are not reconnected to each other; HNSW degrades gracefully under
// sparse deletion, which matches SPANN's low centroid churn rate.
func (h *HNSWIndex) Remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, id)
	if h.entry == id {
		h.hasEntry = false
		for otherID := range h.nodes {
			h.entry = otherID
			h.hasEntry = true
			break
		}
	}
}

func (h *HNSWIndex) greedyClosest(from uint64, query []float32, layer int) uint64 {
	current := from
	currentDist := h.distance(query, h.nodes[current].vector)
	for {
		improved := false
		node := h.nodes[current]
		if layer >= len(node.neighbors) {
			return current
		}
		for _, nb := range node.neighbors[layer] {
			other, ok := h.nodes[nb]
			if !ok {
				continue
			}
			d := h.distance(query, other.vector)
			if d < currentDist {
				currentDist = d
				current = nb
				improved = true
			}
		}
		if !improved {
			return current
		}
	}
}

type hnswCandidate struct {
	id   uint64
	dist float64
}

// searchLayer runs a bounded best-first search from entry, returning
// up to ef candidates sorted by ascending distance.
func (h *HNSWIndex) searchLayer(query []float32, entry uint64, ef int, layer int) []hnswCandidate {
	visited := map[uint64]bool{entry: true}
	entryNode, ok := h.nodes[entry]
	if !ok {
		return nil
	}
	entryDist := h.distance(query, entryNode.vector)
	candidates := []hnswCandidate{{id: entry, dist: entryDist}}
	results := []hnswCandidate{{id: entry, dist: entryDist}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		c := candidates[0]
		candidates = candidates[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			break
		}

		node, ok := h.nodes[c.id]
		if !ok || layer >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			other, ok := h.nodes[nb]
			if !ok {
				continue
			}
			d := h.distance(query, other.vector)
			candidates = append(candidates, hnswCandidate{id: nb, dist: d})
			results = append(results, hnswCandidate{id: nb, dist: d})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func selectNeighbors(candidates []hnswCandidate, m int) []uint64 {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]uint64, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// Search returns the topK closest centroid ids to query.
func (h *HNSWIndex) Search(query []float32, topK int) []hnswCandidate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasEntry {
		return nil
	}
	entry := h.entry
	for lc := h.maxLayer; lc > 0; lc-- {
		entry = h.greedyClosest(entry, query, lc)
	}
	ef := h.cfg.EfSearch
	if topK > ef {
		ef = topK
	}
	results := h.searchLayer(query, entry, ef, 0)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Len reports the number of live centroid nodes.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Vector returns the stored vector for a centroid id.
func (h *HNSWIndex) Vector(id uint64) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[id]
	if !ok {
		return nil, false
	}
	return n.vector, true
}
