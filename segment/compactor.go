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
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/wal"
)

// VectorWriter is the subset of spann.Writer (or an HNSW-only
// equivalent) the compactor needs; kept as an interface so the
// compactor doesn't depend on the index kind.
type VectorWriter interface {
	Add(key uint64, embedding []float32) error
	Delete(key uint64)
	Commit() FlushIDs
}

// FlushIDs is the name->id set a vector writer emits on Commit,
// independent of whether it's HNSW or SPANN underneath.
type FlushIDs struct {
	IDs map[string]uint64
}

// MetadataWriter and RecordWriter are applied before the vector
// writer, in the fixed order metadata -> record -> vector.
type MetadataWriter interface {
	Apply(rec ferrotypes.MaterializedRecord) error
	Commit() map[string][]string
}

type RecordWriter interface {
	Apply(rec ferrotypes.MaterializedRecord) error
	Commit() map[string][]string
}

// ControlPlane is the subset of the sysdb RPC surface the compactor
// drives.
type ControlPlane interface {
	CollectionsWithNewData(ctx context.Context, minCompactionSize int64) ([]ferrotypes.Collection, error)
	FlushCompaction(ctx context.Context, collectionID string, files map[string][]string, logPosition uint64, newVersion uint64) error
}

// IDMapper assigns stable uint64 point keys to string record ids for
// the vector index, and resolves them back for the control plane.
type IDMapper interface {
	KeyFor(id string) uint64
}

// Compactor polls the control plane for collections with enough new
// data, pulls their log tail since log_position, materializes it, and
// applies + flushes + publishes the result. At-least-once: a replayed
// poll below the already-published log_position is a no-op because
// FlushCompaction's new log_position strictly advances past it.
type Compactor struct {
	control           ControlPlane
	reader            *wal.Reader
	minCompactionSize int64
	pollInterval      time.Duration
	logger            *zap.Logger
	resolveTargets    TargetResolver
	decodeRecord      func([]byte) ferrotypes.OperationRecord
}

// TargetResolver resolves the writers one compaction round applies to
// for a given collection; supplied by the caller (cmd/ferrodb-node
// wiring) since writer construction depends on the collection's index
// kind and on-disk layout.
type TargetResolver func(ctx context.Context, coll ferrotypes.Collection) (CompactionTarget, error)

func NewCompactor(control ControlPlane, reader *wal.Reader, minCompactionSize int64, pollInterval time.Duration, resolveTargets TargetResolver, decodeRecord func([]byte) ferrotypes.OperationRecord, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		control: control, reader: reader, minCompactionSize: minCompactionSize, pollInterval: pollInterval,
		resolveTargets: resolveTargets, decodeRecord: decodeRecord, logger: logger,
	}
}

// Run polls until ctx is cancelled.
func (c *Compactor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				c.logger.Warn("segment: compaction tick failed", zap.Error(err))
			}
		}
	}
}

func (c *Compactor) tick(ctx context.Context) error {
	collections, err := c.control.CollectionsWithNewData(ctx, c.minCompactionSize)
	if err != nil {
		return err
	}
	for _, coll := range collections {
		if err := c.compactOne(ctx, coll); err != nil {
			c.logger.Warn("segment: compacting collection failed", zap.String("collection_id", coll.ID), zap.Error(err))
		}
	}
	return nil
}

// CompactionTarget bundles the writers one compaction round applies
// to, in the fixed order metadata -> record -> vector.
type CompactionTarget struct {
	Manifest string
	Metadata MetadataWriter
	Record   RecordWriter
	Vector   VectorWriter
	IDs      IDMapper
}

func (c *Compactor) compactOne(ctx context.Context, coll ferrotypes.Collection) error {
	if c.resolveTargets == nil {
		return ferrodberrs.New(ferrodberrs.Internal, "segment: no target resolver installed")
	}
	target, err := c.resolveTargets(ctx, coll)
	if err != nil {
		return err
	}

	records, err := c.reader.Read(ctx, target.Manifest, wal.ReadOptions{FromOffset: coll.LogPosition})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil // nothing new; at-least-once no-op
	}

	ops := make([]ferrotypes.OperationRecord, len(records))
	maxOffset := coll.LogPosition
	for i, r := range records {
		ops[i] = c.decodeRecord(r.Body)
		if uint64(r.Offset)+1 > maxOffset {
			maxOffset = uint64(r.Offset) + 1
		}
	}

	materialized := Materialize(ops)
	if err := Apply(target, materialized); err != nil {
		return err
	}

	files := make(map[string][]string)
	for name, paths := range target.Metadata.Commit() {
		files[name] = paths
	}
	for name, paths := range target.Record.Commit() {
		files[name] = paths
	}
	vectorFiles := target.Vector.Commit()
	for name, id := range vectorFiles.IDs {
		files[name] = []string{stringifyID(id)}
	}

	return c.control.FlushCompaction(ctx, coll.ID, files, maxOffset, coll.Version+1)
}

// Apply invokes metadata-writer, record-writer, and vector-writer in
// that fixed order for every materialized record.
func Apply(target CompactionTarget, records []ferrotypes.MaterializedRecord) error {
	for _, rec := range records {
		if err := target.Metadata.Apply(rec); err != nil {
			return err
		}
		if err := target.Record.Apply(rec); err != nil {
			return err
		}
		if rec.Final == ferrotypes.FinalDelete {
			target.Vector.Delete(target.IDs.KeyFor(rec.ID))
			continue
		}
		if rec.Embedding == nil {
			continue
		}
		if err := target.Vector.Add(target.IDs.KeyFor(rec.ID), rec.Embedding); err != nil {
			return err
		}
	}
	return nil
}

func stringifyID(id uint64) string {
	return strconv.FormatUint(id, 16)
}
