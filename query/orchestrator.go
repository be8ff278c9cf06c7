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
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// LogFetcher pulls the WAL tail for a collection since its last
// compaction, already decoded and offset-tagged.
type LogFetcher interface {
	FetchLog(ctx context.Context, collectionID string) ([]ferrotypes.LogRecord, error)
}

// SegmentFetcher resolves whatever handle knn-segment and the filter
// stage need to read the collection's current compacted segments
// (manifest paths, blockfile providers, and the vector reader).
type SegmentFetcher interface {
	FetchSegments(ctx context.Context, collectionID string) (SegmentHandle, error)
}

// SegmentHandle is the opaque per-request handle a SegmentFetcher
// produces; orchestrator stages pass it to Filterer/SegmentScorer/
// RawEmbeddingFetcher without knowing its concrete shape.
type SegmentHandle interface{}

// Filterer evaluates a where-clause (itself opaque to the
// orchestrator — the metadata/full-text index is a black-box
// offset-id filter) against both the log tail and the segment handle,
// producing the two matched-offset-id sets the limit operator and
// scan stages use.
type Filterer interface {
	Filter(ctx context.Context, where interface{}, log []ferrotypes.LogRecord, seg SegmentHandle) (logIDs, segmentIDs *roaring.Bitmap, err error)
}

// ScoredOffset pairs a log offset (for log hits) or a segment point
// key (for segment hits) with its distance.
type ScoredOffset struct {
	ID       uint32
	Distance float64
}

// LogScorer scans log records allowed by logIDs and scores them with
// exact distance.
type LogScorer interface {
	ScoreLog(ctx context.Context, query []float32, metric ferrotypes.DistanceMetric, log []ferrotypes.LogRecord, allowed *roaring.Bitmap) ([]ScoredOffset, error)
}

// SegmentScorer drives the compacted-segment ANN index (HNSW or
// SPANN) restricted to allowed offset ids.
type SegmentScorer interface {
	ScoreSegment(ctx context.Context, query []float32, metric ferrotypes.DistanceMetric, seg SegmentHandle, allowed *roaring.Bitmap, k int) ([]ScoredOffset, error)
}

// RawEmbeddingFetcher resolves the stored raw vector for a candidate
// offset id, used for the exact-rerank stage.
type RawEmbeddingFetcher interface {
	FetchEmbedding(ctx context.Context, collectionID string, id uint32, seg SegmentHandle, log []ferrotypes.LogRecord) ([]float32, bool)
}

// Projector resolves the fields a query requests (document, metadata,
// embedding) for the final candidate set.
type Projector interface {
	Project(ctx context.Context, collectionID string, ids []uint32, seg SegmentHandle, log []ferrotypes.LogRecord) (map[uint32]ferrotypes.MaterializedRecord, error)
}

// Request is one client query.
type Request struct {
	CollectionID       string
	Query              []float32
	Metric             ferrotypes.DistanceMetric
	K                  int
	RerankFactor       int // merge stage keeps top k*RerankFactor before exact rerank
	VectorRerankFactor int // >1 triggers the exact-rerank-with-raw-embeddings stage
	Where              interface{}
}

// Result is one scored, projected hit.
type Result struct {
	ID       uint32
	Distance float64
	Record   ferrotypes.MaterializedRecord
}

// Orchestrator runs the per-request scatter/gather state machine
// described for query serving: fetch-log + fetch-segments in
// parallel, filter, knn-log + knn-segment in parallel, merge,
// optional rerank, project.
type Orchestrator struct {
	Log      LogFetcher
	Segments SegmentFetcher
	Filter   Filterer
	LogKNN   LogScorer
	SegKNN   SegmentScorer
	Raw      RawEmbeddingFetcher
	Project  Projector
}

// Execute runs one request end to end.
func (o *Orchestrator) Execute(ctx context.Context, req Request) ([]Result, error) {
	var (
		logRecords []ferrotypes.LogRecord
		seg        SegmentHandle
	)

	// Step 1: fetch-log and fetch-segments in parallel.
	fetchGroup, fetchCtx := errgroup.WithContext(ctx)
	fetchGroup.Go(func() error {
		var err error
		logRecords, err = o.Log.FetchLog(fetchCtx, req.CollectionID)
		return err
	})
	fetchGroup.Go(func() error {
		var err error
		seg, err = o.Segments.FetchSegments(fetchCtx, req.CollectionID)
		return err
	})
	if err := fetchGroup.Wait(); err != nil {
		return nil, err
	}

	// Step 2: filter -> log_offset_ids, compact_offset_ids.
	logIDs, segmentIDs, err := o.Filter.Filter(ctx, req.Where, logRecords, seg)
	if err != nil {
		return nil, err
	}

	// Step 3: knn-log and knn-segment in parallel.
	rerankFactor := req.RerankFactor
	if rerankFactor < 1 {
		rerankFactor = 1
	}
	fetchCount := req.K * rerankFactor

	var logHits, segHits []ScoredOffset
	knnGroup, knnCtx := errgroup.WithContext(ctx)
	knnGroup.Go(func() error {
		var err error
		logHits, err = o.LogKNN.ScoreLog(knnCtx, req.Query, req.Metric, logRecords, logIDs)
		return err
	})
	knnGroup.Go(func() error {
		var err error
		segHits, err = o.SegKNN.ScoreSegment(knnCtx, req.Query, req.Metric, seg, segmentIDs, fetchCount)
		return err
	})
	if err := knnGroup.Wait(); err != nil {
		return nil, err
	}

	// Step 4: merge, dedup (log wins over segment for the same id,
	// since the log is the more recent source of truth), sort, and
	// keep the top k*rerank_factor.
	merged := mergeScored(logHits, segHits, fetchCount)

	// Step 5: optional exact rerank using raw embeddings.
	if req.VectorRerankFactor > 1 && o.Raw != nil {
		merged = o.rerank(ctx, req, merged, logRecords, seg)
	}

	if len(merged) > req.K {
		merged = merged[:req.K]
	}

	// Step 6: project requested fields.
	ids := make([]uint32, len(merged))
	for i, m := range merged {
		ids[i] = m.ID
	}
	projected, err := o.Project.Project(ctx, req.CollectionID, ids, seg, logRecords)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(merged))
	for _, m := range merged {
		out = append(out, Result{ID: m.ID, Distance: m.Distance, Record: projected[m.ID]})
	}
	return out, nil
}

func (o *Orchestrator) rerank(ctx context.Context, req Request, candidates []ScoredOffset, log []ferrotypes.LogRecord, seg SegmentHandle) []ScoredOffset {
	out := make([]ScoredOffset, 0, len(candidates))
	for _, c := range candidates {
		vec, ok := o.Raw.FetchEmbedding(ctx, req.CollectionID, c.ID, seg, log)
		if !ok {
			out = append(out, c)
			continue
		}
		out = append(out, ScoredOffset{ID: c.ID, Distance: ferrotypes.Distance(req.Metric, vec, req.Query)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	limit := req.K * req.VectorRerankFactor
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// mergeScored combines the log and segment candidate lists, letting a
// log hit shadow a segment hit for the same id (the log is always the
// fresher source), sorts by ascending distance, and truncates to
// limit.
func mergeScored(logHits, segHits []ScoredOffset, limit int) []ScoredOffset {
	seen := make(map[uint32]bool, len(logHits))
	out := make([]ScoredOffset, 0, len(logHits)+len(segHits))
	for _, h := range logHits {
		seen[h.ID] = true
		out = append(out, h)
	}
	for _, h := range segHits {
		if seen[h.ID] {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
