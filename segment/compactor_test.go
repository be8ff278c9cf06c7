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

package segment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/objectstore"
	"github.com/ferrodb/ferrodb/wal"
)

type fakeWriter struct {
	applied []ferrotypes.MaterializedRecord
	name    string
}

func (f *fakeWriter) Apply(rec ferrotypes.MaterializedRecord) error {
	f.applied = append(f.applied, rec)
	return nil
}

func (f *fakeWriter) Commit() map[string][]string {
	return map[string][]string{f.name: {f.name + "-page-0"}}
}

type fakeVectorWriter struct {
	added   map[uint64][]float32
	deleted map[uint64]bool
}

func newFakeVectorWriter() *fakeVectorWriter {
	return &fakeVectorWriter{added: make(map[uint64][]float32), deleted: make(map[uint64]bool)}
}

func (f *fakeVectorWriter) Add(key uint64, embedding []float32) error {
	f.added[key] = embedding
	return nil
}

func (f *fakeVectorWriter) Delete(key uint64) { f.deleted[key] = true }

func (f *fakeVectorWriter) Commit() FlushIDs {
	return FlushIDs{IDs: map[string]uint64{"vector": 1}}
}

type fakeIDMapper struct{}

func (fakeIDMapper) KeyFor(id string) uint64 {
	var h uint64
	for _, b := range []byte(id) {
		h = h*31 + uint64(b)
	}
	return h
}

func TestApplyRunsMetadataThenRecordThenVector(t *testing.T) {
	meta := &fakeWriter{name: "metadata"}
	rec := &fakeWriter{name: "record"}
	vec := newFakeVectorWriter()
	target := CompactionTarget{Metadata: meta, Record: rec, Vector: vec, IDs: fakeIDMapper{}}

	records := []ferrotypes.MaterializedRecord{
		{ID: "a", Embedding: []float32{1, 2}, Final: ferrotypes.FinalAddNew},
		{ID: "b", Final: ferrotypes.FinalDelete},
	}
	if err := Apply(target, records); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(meta.applied) != 2 || len(rec.applied) != 2 {
		t.Fatalf("metadata/record writers should see every record regardless of op: meta=%d rec=%d", len(meta.applied), len(rec.applied))
	}
	keyA := fakeIDMapper{}.KeyFor("a")
	if _, ok := vec.added[keyA]; !ok {
		t.Fatalf("vector writer missing Add for id a")
	}
	keyB := fakeIDMapper{}.KeyFor("b")
	if !vec.deleted[keyB] {
		t.Fatalf("vector writer missing Delete for id b")
	}
}

func TestApplySkipsVectorForRecordsWithoutEmbedding(t *testing.T) {
	meta := &fakeWriter{name: "metadata"}
	rec := &fakeWriter{name: "record"}
	vec := newFakeVectorWriter()
	target := CompactionTarget{Metadata: meta, Record: rec, Vector: vec, IDs: fakeIDMapper{}}

	records := []ferrotypes.MaterializedRecord{
		{ID: "no-vec", Final: ferrotypes.FinalUpdate},
	}
	if err := Apply(target, records); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(vec.added) != 0 {
		t.Fatalf("vector writer should not see a record with no embedding: %+v", vec.added)
	}
}

type fakeControlPlane struct {
	collections     []ferrotypes.Collection
	flushedFiles    map[string][]string
	flushedLogPos   uint64
	flushedVersion  uint64
	flushedCollID   string
}

func (f *fakeControlPlane) CollectionsWithNewData(ctx context.Context, minCompactionSize int64) ([]ferrotypes.Collection, error) {
	return f.collections, nil
}

func (f *fakeControlPlane) FlushCompaction(ctx context.Context, collectionID string, files map[string][]string, logPosition uint64, newVersion uint64) error {
	f.flushedCollID = collectionID
	f.flushedFiles = files
	f.flushedLogPos = logPosition
	f.flushedVersion = newVersion
	return nil
}

func decodeTestRecord(body []byte) ferrotypes.OperationRecord {
	var rec ferrotypes.OperationRecord
	_ = json.Unmarshal(body, &rec)
	return rec
}

func TestCompactorTickCompactsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewFileStore(t.TempDir())
	mm := wal.NewManifestManager(store, objectstore.LogManifestKey("log"), "writer-1", nil)
	if _, err := mm.Initialize(ctx, "writer-1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	cfg := wal.DefaultWriterConfig()
	cfg.BatchIntervalUs = 1_000
	w, err := wal.OpenWriter(ctx, store, "log", "writer-1", cfg, nil)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	op := ferrotypes.OperationRecord{ID: "x", Operation: ferrotypes.OpAdd, Embedding: []float32{1, 2, 3}}
	body, _ := json.Marshal(op)
	if _, err := w.Append(ctx, body); err != nil {
		t.Fatalf("Append: %v", err)
	}

	meta := &fakeWriter{name: "metadata"}
	rec := &fakeWriter{name: "record"}
	vec := newFakeVectorWriter()
	control := &fakeControlPlane{
		collections: []ferrotypes.Collection{{ID: "coll-1", LogPosition: 0, Version: 0}},
	}

	resolver := func(ctx context.Context, coll ferrotypes.Collection) (CompactionTarget, error) {
		return CompactionTarget{
			Manifest: objectstore.LogManifestKey("log"),
			Metadata: meta, Record: rec, Vector: vec, IDs: fakeIDMapper{},
		}, nil
	}

	reader := wal.NewReader(store)
	compactor := NewCompactor(control, reader, 0, time.Hour, resolver, decodeTestRecord, nil)

	if err := compactor.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(meta.applied) != 1 || meta.applied[0].ID != "x" {
		t.Fatalf("metadata writer did not see the appended record: %+v", meta.applied)
	}
	if control.flushedCollID != "coll-1" {
		t.Fatalf("FlushCompaction not called for coll-1: %+v", control)
	}
	if control.flushedLogPos != 2 {
		t.Fatalf("flushedLogPos = %d, want 2 (one record at offset 1, maxOffset = offset+1)", control.flushedLogPos)
	}
	if control.flushedVersion != 1 {
		t.Fatalf("flushedVersion = %d, want 1", control.flushedVersion)
	}
}

func TestCompactorTickNoopWhenNoNewRecords(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewFileStore(t.TempDir())
	mm := wal.NewManifestManager(store, objectstore.LogManifestKey("log"), "writer-1", nil)
	if _, err := mm.Initialize(ctx, "writer-1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	control := &fakeControlPlane{
		collections: []ferrotypes.Collection{{ID: "coll-1", LogPosition: 0, Version: 0}},
	}
	resolver := func(ctx context.Context, coll ferrotypes.Collection) (CompactionTarget, error) {
		return CompactionTarget{
			Manifest: objectstore.LogManifestKey("log"),
			Metadata: &fakeWriter{name: "metadata"}, Record: &fakeWriter{name: "record"},
			Vector: newFakeVectorWriter(), IDs: fakeIDMapper{},
		}, nil
	}
	reader := wal.NewReader(store)
	compactor := NewCompactor(control, reader, 0, time.Hour, resolver, decodeTestRecord, nil)

	if err := compactor.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if control.flushedCollID != "" {
		t.Fatalf("FlushCompaction should not be called when there are no new records")
	}
}
