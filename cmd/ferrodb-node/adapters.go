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
	"context"

	"github.com/RoaringBitmap/roaring"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/query"
	"github.com/ferrodb/ferrodb/segment"
	"github.com/ferrodb/ferrodb/wal"
)

// logFetcher pulls everything appended since the collection's last
// compaction, a small tail scan by construction since the compactor
// keeps log_position close to the writer's current offset.
type logFetcher struct {
	reader      *wal.Reader
	manifestKey string
	logPosition uint64
}

func (f logFetcher) FetchLog(ctx context.Context, collectionID string) ([]ferrotypes.LogRecord, error) {
	records, err := f.reader.Read(ctx, f.manifestKey, wal.ReadOptions{FromOffset: f.logPosition})
	if err != nil {
		return nil, err
	}
	out := make([]ferrotypes.LogRecord, len(records))
	for i, r := range records {
		out[i] = ferrotypes.LogRecord{LogOffset: int64(r.Offset), Record: decodeOperationRecord(r.Body)}
	}
	return out, nil
}

// segmentHandle is the opaque per-request handle segmentFetcher hands
// back: just the already-open collection state, since the live
// in-memory projection (populated by the last compaction) stands in
// for re-reading blockfile pages from object storage.
type segmentHandle struct {
	cs *collectionState
}

type segmentFetcher struct {
	cs *collectionState
}

func (f segmentFetcher) FetchSegments(ctx context.Context, collectionID string) (query.SegmentHandle, error) {
	return segmentHandle{cs: f.cs}, nil
}

// equalityFilterer evaluates a where-clause expressed as a flat
// key/value equality map (a reduced scope against the full
// conjunction/disjunction grammar collections support over the wire;
// that expression tree is flattened to equality terms upstream of the
// orchestrator). A nil where matches everything.
type equalityFilterer struct{}

func (equalityFilterer) Filter(ctx context.Context, where interface{}, log []ferrotypes.LogRecord, seg query.SegmentHandle) (*roaring.Bitmap, *roaring.Bitmap, error) {
	terms, _ := where.(map[string]ferrotypes.Value)

	logBitmap := roaring.New()
	for _, rec := range log {
		if matchesTerms(rec.Record.Metadata, terms) {
			logBitmap.Add(uint32(rec.LogOffset))
		}
	}

	segBitmap := roaring.New()
	handle, _ := seg.(segmentHandle)
	if handle.cs != nil {
		handle.cs.mu.RLock()
		for key, rec := range handle.cs.live {
			if !matchesTerms(rec.Metadata, terms) {
				continue
			}
			if ord, ok := handle.cs.vector.OrdinalFor(key); ok {
				segBitmap.Add(ord)
			}
		}
		handle.cs.mu.RUnlock()
	}

	return logBitmap, segBitmap, nil
}

func matchesTerms(metadata map[string]ferrotypes.Value, terms map[string]ferrotypes.Value) bool {
	for k, want := range terms {
		got, ok := metadata[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// logScorer exact-scores every allowed log record that carries an
// embedding; the log tail is small enough that a linear scan beats
// standing up an ANN structure for it.
type logScorer struct{}

func (logScorer) ScoreLog(ctx context.Context, q []float32, metric ferrotypes.DistanceMetric, log []ferrotypes.LogRecord, allowed *roaring.Bitmap) ([]query.ScoredOffset, error) {
	var out []query.ScoredOffset
	for _, rec := range log {
		id := uint32(rec.LogOffset)
		if allowed != nil && !allowed.Contains(id) {
			continue
		}
		if rec.Record.Embedding == nil {
			continue
		}
		out = append(out, query.ScoredOffset{ID: id, Distance: ferrotypes.Distance(metric, rec.Record.Embedding, q)})
	}
	return out, nil
}

// segmentScorer drives the collection's resident SPANN reader,
// translating its uint64 point keys to the stable uint32 ordinals the
// orchestrator's ScoredOffset carries.
type segmentScorer struct{}

func (segmentScorer) ScoreSegment(ctx context.Context, q []float32, metric ferrotypes.DistanceMetric, seg query.SegmentHandle, allowed *roaring.Bitmap, k int) ([]query.ScoredOffset, error) {
	handle, ok := seg.(segmentHandle)
	if !ok || handle.cs == nil {
		return nil, nil
	}
	hits := handle.cs.vectorReader.Search(q, k)
	out := make([]query.ScoredOffset, 0, len(hits))
	for _, h := range hits {
		ord, ok := handle.cs.vector.OrdinalFor(h.Key)
		if !ok {
			continue
		}
		if allowed != nil && !allowed.Contains(ord) {
			continue
		}
		out = append(out, query.ScoredOffset{ID: ord, Distance: h.Distance})
	}
	return out, nil
}

// rawEmbeddingFetcher resolves a candidate's raw vector for exact
// rerank: log-origin ids resolve against the log tail directly,
// segment-origin ids resolve through the vector writer's ordinal
// table back to its point key and then its raw-embedding side table.
type rawEmbeddingFetcher struct{}

func (rawEmbeddingFetcher) FetchEmbedding(ctx context.Context, collectionID string, id uint32, seg query.SegmentHandle, log []ferrotypes.LogRecord) ([]float32, bool) {
	for _, rec := range log {
		if uint32(rec.LogOffset) == id && rec.Record.Embedding != nil {
			return rec.Record.Embedding, true
		}
	}
	handle, ok := seg.(segmentHandle)
	if !ok || handle.cs == nil {
		return nil, false
	}
	key, ok := handle.cs.vector.KeyForOrdinal(id)
	if !ok {
		return nil, false
	}
	return handle.cs.vector.RawEmbedding(key)
}

// projector resolves document/metadata/embedding fields for the final
// hit list, preferring the log (freshest) and falling back to the
// live post-compaction projection.
type projector struct{}

func (projector) Project(ctx context.Context, collectionID string, ids []uint32, seg query.SegmentHandle, log []ferrotypes.LogRecord) (map[uint32]ferrotypes.MaterializedRecord, error) {
	want := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	byLogID := make(map[uint32][]ferrotypes.OperationRecord)
	for _, rec := range log {
		id := uint32(rec.LogOffset)
		if want[id] {
			byLogID[id] = append(byLogID[id], rec.Record)
		}
	}

	out := make(map[uint32]ferrotypes.MaterializedRecord, len(ids))
	for id, ops := range byLogID {
		materialized := segment.Materialize(ops)
		if len(materialized) > 0 {
			out[id] = materialized[len(materialized)-1]
		}
	}

	handle, ok := seg.(segmentHandle)
	if ok && handle.cs != nil {
		handle.cs.mu.RLock()
		for key, rec := range handle.cs.live {
			ord, ok := handle.cs.vector.OrdinalFor(key)
			if !ok || !want[ord] {
				continue
			}
			if _, already := out[ord]; !already {
				out[ord] = rec
			}
		}
		handle.cs.mu.RUnlock()
	}

	return out, nil
}
