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

package query

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// GroupKey is a composite key built from the values of the fields a
// search groups by. Two records are in the same group when every
// field's value (or absence) matches.
type GroupKey struct {
	values  []ferrotypes.Value
	present []bool
	hashKey string
}

func groupKeyFromMetadata(metadata map[string]ferrotypes.Value, keys []string) GroupKey {
	values := make([]ferrotypes.Value, len(keys))
	present := make([]bool, len(keys))
	var parts []string
	for i, k := range keys {
		v, ok := metadata[k]
		present[i] = ok
		if ok {
			values[i] = v
			parts = append(parts, hashPart(v))
		} else {
			parts = append(parts, "n:null")
		}
	}
	return GroupKey{values: values, present: present, hashKey: strings.Join(parts, "|")}
}

func hashPart(v ferrotypes.Value) string {
	switch v.Kind() {
	case ferrotypes.KindBool:
		return fmt.Sprintf("b:%t", v.Bool())
	case ferrotypes.KindInt:
		return fmt.Sprintf("i:%d", v.Int())
	case ferrotypes.KindFloat:
		return fmt.Sprintf("f:%d", math.Float64bits(v.Float()))
	case ferrotypes.KindString:
		return "s:" + v.String()
	case ferrotypes.KindSparseVector:
		return "v:<sparse>"
	default:
		return "n:null"
	}
}

// StringValues renders the key's values for response serialization.
func (k GroupKey) StringValues() []string {
	out := make([]string, len(k.values))
	for i, v := range k.values {
		if !k.present[i] {
			out[i] = "<null>"
			continue
		}
		switch v.Kind() {
		case ferrotypes.KindBool:
			out[i] = fmt.Sprintf("%t", v.Bool())
		case ferrotypes.KindInt:
			out[i] = fmt.Sprintf("%d", v.Int())
		case ferrotypes.KindFloat:
			out[i] = fmt.Sprintf("%g", v.Float())
		case ferrotypes.KindString:
			out[i] = v.String()
		case ferrotypes.KindSparseVector:
			out[i] = "<sparse_vector>"
		default:
			out[i] = "<null>"
		}
	}
	return out
}

// RecordWithScore is one scored member of a group.
type RecordWithScore struct {
	OffsetID uint32
	Score    float64
}

// RecordGroup is a finalized group: its key, its records sorted by
// ascending score and truncated to group_size, and its best score.
type RecordGroup struct {
	Key       GroupKey
	Records   []RecordWithScore
	BestScore float64
}

// GroupsAggregator accumulates scored records across one or more
// search iterations, bucketing by a composite metadata key, until
// enough groups have filled to group_size. It supports a two-phase
// search: phase 1 discovers candidate groups broadly, phase 2 targets
// the groups that are still short of group_size (see
// UnfilledGroupMetadataValues).
type GroupsAggregator struct {
	groupByKeys []string
	maxGroups   int
	groupSize   int

	groups          map[string][]RecordWithScore
	keyByHash       map[string]GroupKey
	groupBestScores map[string]float64
	fullGroups      map[string]bool
	seenIDs         map[uint32]bool
}

func NewGroupsAggregator(groupByKeys []string, maxGroups, groupSize int) *GroupsAggregator {
	return &GroupsAggregator{
		groupByKeys:     groupByKeys,
		maxGroups:       maxGroups,
		groupSize:       groupSize,
		groups:          make(map[string][]RecordWithScore),
		keyByHash:       make(map[string]GroupKey),
		groupBestScores: make(map[string]float64),
		fullGroups:      make(map[string]bool),
		seenIDs:         make(map[uint32]bool),
	}
}

// AddPoints folds one iteration's scored records into the aggregator,
// skipping duplicates (by offset id) and records belonging to
// already-full groups.
func (g *GroupsAggregator) AddPoints(records []RecordWithScore, metadataByOffset map[uint32]map[string]ferrotypes.Value) {
	for _, rec := range records {
		if g.seenIDs[rec.OffsetID] {
			continue
		}
		key := groupKeyFromMetadata(metadataByOffset[rec.OffsetID], g.groupByKeys)
		if g.fullGroups[key.hashKey] {
			continue
		}
		g.seenIDs[rec.OffsetID] = true
		g.keyByHash[key.hashKey] = key

		g.groups[key.hashKey] = append(g.groups[key.hashKey], rec)
		best, ok := g.groupBestScores[key.hashKey]
		if !ok || rec.Score < best {
			g.groupBestScores[key.hashKey] = rec.Score
		}
		if len(g.groups[key.hashKey]) >= g.groupSize {
			g.fullGroups[key.hashKey] = true
		}
	}
}

// SeenIDs returns the set of offset ids folded in so far, used to
// build the exclusion filter for a subsequent search iteration.
func (g *GroupsAggregator) SeenIDs() map[uint32]bool {
	return g.seenIDs
}

func (g *GroupsAggregator) NumGroups() int { return len(g.groups) }

func (g *GroupsAggregator) bestGroupHashes() []string {
	type scored struct {
		hash  string
		score float64
	}
	list := make([]scored, 0, len(g.groupBestScores))
	for h, s := range g.groupBestScores {
		list = append(list, scored{hash: h, score: s})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].score < list[j].score })
	if len(list) > g.maxGroups {
		list = list[:g.maxGroups]
	}
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.hash
	}
	return out
}

// NumFilledBestGroups counts, among the top max_groups groups by best
// score, how many have already reached group_size.
func (g *GroupsAggregator) NumFilledBestGroups() int {
	count := 0
	for _, h := range g.bestGroupHashes() {
		if g.fullGroups[h] {
			count++
		}
	}
	return count
}

// HasEnoughFilledGroups reports whether search can stop.
func (g *GroupsAggregator) HasEnoughFilledGroups() bool {
	return g.NumFilledBestGroups() >= g.maxGroups
}

// UnfilledBestGroupKeys returns the keys among the best groups that
// haven't reached group_size, for phase-2 targeted search.
func (g *GroupsAggregator) UnfilledBestGroupKeys() []GroupKey {
	var out []GroupKey
	for _, h := range g.bestGroupHashes() {
		if !g.fullGroups[h] {
			out = append(out, g.keyByHash[h])
		}
	}
	return out
}

// UnfilledGroupMetadataValues returns, for each unfilled best group,
// the (field, value) pairs a record must match to belong to it —
// used to construct a where-filter for phase-2 search.
func (g *GroupsAggregator) UnfilledGroupMetadataValues() [][]MetadataPair {
	var out [][]MetadataPair
	for _, key := range g.UnfilledBestGroupKeys() {
		var pairs []MetadataPair
		for i, field := range g.groupByKeys {
			if key.present[i] {
				pairs = append(pairs, MetadataPair{Field: field, Value: key.values[i]})
			}
		}
		if len(pairs) > 0 {
			out = append(out, pairs)
		}
	}
	return out
}

// MetadataPair is one field/value constraint for a phase-2 filter.
type MetadataPair struct {
	Field string
	Value ferrotypes.Value
}

// Distill produces the final grouped output: the top max_groups
// groups sorted by best score, each truncated to group_size records
// sorted by ascending score.
func (g *GroupsAggregator) Distill() []RecordGroup {
	best := g.bestGroupHashes()
	result := make([]RecordGroup, 0, len(best))
	for _, h := range best {
		records := append([]RecordWithScore(nil), g.groups[h]...)
		sort.Slice(records, func(i, j int) bool { return records[i].Score < records[j].Score })
		if len(records) > g.groupSize {
			records = records[:g.groupSize]
		}
		bestScore := math.MaxFloat64
		if len(records) > 0 {
			bestScore = records[0].Score
		}
		result = append(result, RecordGroup{Key: g.keyByHash[h], Records: records, BestScore: bestScore})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BestScore < result[j].BestScore })
	return result
}
