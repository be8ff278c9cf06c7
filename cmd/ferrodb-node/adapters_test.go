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
	"encoding/json"
	"sync"
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

func TestMatchesTermsEmptyAlwaysMatches(t *testing.T) {
	metadata := map[string]ferrotypes.Value{"color": ferrotypes.StringValue("red")}
	if !matchesTerms(metadata, nil) {
		t.Fatalf("matchesTerms with no terms should match everything")
	}
}

func TestMatchesTermsAllMustMatch(t *testing.T) {
	metadata := map[string]ferrotypes.Value{
		"color": ferrotypes.StringValue("red"),
		"size":  ferrotypes.IntValue(10),
	}
	terms := map[string]ferrotypes.Value{
		"color": ferrotypes.StringValue("red"),
		"size":  ferrotypes.IntValue(11),
	}
	if matchesTerms(metadata, terms) {
		t.Fatalf("matchesTerms should fail when one term mismatches")
	}
}

func TestMatchesTermsMissingKeyFails(t *testing.T) {
	metadata := map[string]ferrotypes.Value{"color": ferrotypes.StringValue("red")}
	terms := map[string]ferrotypes.Value{"size": ferrotypes.IntValue(1)}
	if matchesTerms(metadata, terms) {
		t.Fatalf("matchesTerms should fail when a term key is absent from metadata")
	}
}

func TestEqualityFiltererFiltersLogAndSegment(t *testing.T) {
	log := []ferrotypes.LogRecord{
		{LogOffset: 1, Record: ferrotypes.OperationRecord{Metadata: map[string]ferrotypes.Value{"tag": ferrotypes.StringValue("a")}}},
		{LogOffset: 2, Record: ferrotypes.OperationRecord{Metadata: map[string]ferrotypes.Value{"tag": ferrotypes.StringValue("b")}}},
	}

	vw := newTestVectorWriter(2)
	_ = vw.Add(500, []float32{1, 1})
	_ = vw.Add(600, []float32{2, 2})
	ord500, _ := vw.OrdinalFor(500)

	cs := &collectionState{
		vector: vw,
		live: map[uint64]ferrotypes.MaterializedRecord{
			500: {ID: "x", Metadata: map[string]ferrotypes.Value{"tag": ferrotypes.StringValue("a")}},
			600: {ID: "y", Metadata: map[string]ferrotypes.Value{"tag": ferrotypes.StringValue("b")}},
		},
	}

	f := equalityFilterer{}
	logIDs, segIDs, err := f.Filter(context.Background(),
		map[string]ferrotypes.Value{"tag": ferrotypes.StringValue("a")},
		log, segmentHandle{cs: cs})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !logIDs.Contains(1) || logIDs.Contains(2) {
		t.Fatalf("log bitmap = %v, want only offset 1", logIDs.ToArray())
	}
	if !segIDs.Contains(ord500) {
		t.Fatalf("segment bitmap missing ordinal for key 500: %v", segIDs.ToArray())
	}
	if segIDs.GetCardinality() != 1 {
		t.Fatalf("segment bitmap cardinality = %d, want 1", segIDs.GetCardinality())
	}
}

func TestEqualityFiltererNilWhereMatchesEverything(t *testing.T) {
	log := []ferrotypes.LogRecord{
		{LogOffset: 1, Record: ferrotypes.OperationRecord{}},
	}
	f := equalityFilterer{}
	logIDs, _, err := f.Filter(context.Background(), nil, log, segmentHandle{})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !logIDs.Contains(1) {
		t.Fatalf("nil where should match every log record")
	}
}

func TestProjectorPrefersLogOverLive(t *testing.T) {
	docLog := "fresh"
	log := []ferrotypes.LogRecord{
		{LogOffset: 9, Record: ferrotypes.OperationRecord{ID: "shared", Operation: ferrotypes.OpAdd, Document: &docLog}},
	}
	vw := newTestVectorWriter(2)
	_ = vw.Add(900, []float32{1, 1})
	ord900, _ := vw.OrdinalFor(900)

	docLive := "stale"
	cs := &collectionState{
		vector: vw,
		mu:     sync.RWMutex{},
		live: map[uint64]ferrotypes.MaterializedRecord{
			900: {ID: "shared", Document: &docLive},
		},
	}

	p := projector{}
	out, err := p.Project(context.Background(), "coll", []uint32{uint32(9), ord900}, segmentHandle{cs: cs}, log)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	logHit, ok := out[9]
	if !ok || logHit.Document == nil || *logHit.Document != "fresh" {
		t.Fatalf("Project[9] = %+v, want fresh log document", logHit)
	}
}

func TestProjectorFallsBackToLiveWhenNotInLog(t *testing.T) {
	vw := newTestVectorWriter(2)
	_ = vw.Add(42, []float32{1, 1})
	ord, _ := vw.OrdinalFor(42)

	doc := "from-segment"
	cs := &collectionState{
		vector: vw,
		live: map[uint64]ferrotypes.MaterializedRecord{
			42: {ID: "seg-only", Document: &doc},
		},
	}

	p := projector{}
	out, err := p.Project(context.Background(), "coll", []uint32{ord}, segmentHandle{cs: cs}, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	rec, ok := out[ord]
	if !ok || rec.Document == nil || *rec.Document != "from-segment" {
		t.Fatalf("Project[%d] = %+v, want from-segment document", ord, rec)
	}
}

func TestRawEmbeddingFetcherLogThenSegment(t *testing.T) {
	log := []ferrotypes.LogRecord{
		{LogOffset: 1, Record: ferrotypes.OperationRecord{Embedding: []float32{9, 9}}},
	}
	vw := newTestVectorWriter(2)
	_ = vw.Add(55, []float32{3, 3})
	ord, _ := vw.OrdinalFor(55)
	cs := &collectionState{vector: vw}

	f := rawEmbeddingFetcher{}
	emb, ok := f.FetchEmbedding(context.Background(), "coll", 1, segmentHandle{cs: cs}, log)
	if !ok || emb[0] != 9 {
		t.Fatalf("FetchEmbedding(log id) = %v, want [9 9]", emb)
	}

	emb2, ok := f.FetchEmbedding(context.Background(), "coll", ord, segmentHandle{cs: cs}, log)
	if !ok || emb2[0] != 3 {
		t.Fatalf("FetchEmbedding(segment ordinal) = %v, want [3 3]", emb2)
	}
}

func TestDecodeOperationRecordRoundTrip(t *testing.T) {
	rec := ferrotypes.OperationRecord{ID: "x", Operation: ferrotypes.OpAdd, Embedding: []float32{1, 2, 3}}
	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := decodeOperationRecord(body)
	if got.ID != "x" || got.Operation != ferrotypes.OpAdd || len(got.Embedding) != 3 {
		t.Fatalf("decodeOperationRecord = %+v", got)
	}
}
