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

package wal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/objectstore"
)

// RegionConfig names one region's backing store for a replicated log.
// Each region keeps its own manifest under the same log_prefix within
// its own store; there is no cross-region manifest, only a cross-region
// write quorum over independent per-region writers.
type RegionConfig struct {
	Region string
	Store  objectstore.Store
}

// ReplicatedWriter fans appends out to N regional EpochWriters and
// durably acknowledges once min_successes regions have installed the
// fragment: the log is available for reads as soon as any single
// region has it, but writes only succeed once a quorum of regions
// agree.
type ReplicatedWriter struct {
	writers      map[string]*EpochWriter
	regions      []string
	minSuccesses int
	graceTimeout time.Duration
}

func OpenReplicatedWriter(ctx context.Context, regions []RegionConfig, logPrefix, writerID string, cfg WriterConfig, minSuccesses int, graceTimeout time.Duration, logger *zap.Logger) (*ReplicatedWriter, error) {
	if minSuccesses <= 0 || minSuccesses > len(regions) {
		return nil, ferrodberrs.New(ferrodberrs.InvalidArgument, "wal: min_successes=%d invalid for %d regions", minSuccesses, len(regions))
	}

	writers := make(map[string]*EpochWriter, len(regions))
	names := make([]string, 0, len(regions))
	for _, rc := range regions {
		w, err := OpenEpochWriter(ctx, rc.Store, logPrefix, writerID, cfg, logger)
		if err != nil {
			for _, opened := range writers {
				opened.current().Close()
			}
			return nil, ferrodberrs.Wrap(ferrodberrs.Internal, err, "wal: opening region %q", rc.Region)
		}
		writers[rc.Region] = w
		names = append(names, rc.Region)
	}

	return &ReplicatedWriter{writers: writers, regions: names, minSuccesses: minSuccesses, graceTimeout: graceTimeout}, nil
}

// Append writes payload to every region concurrently and returns once
// a quorum of regions have durably installed it. The returned offset
// is the offset assigned by the first region to succeed; per-region
// offsets may differ slightly under contention, so callers needing a
// region-specific offset should consult QuorumResult directly via
// AppendDetailed.
func (rw *ReplicatedWriter) Append(ctx context.Context, payload []byte) (int64, error) {
	results, err := rw.AppendDetailed(ctx, payload)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if r.Err == nil {
			return r.Offset, nil
		}
	}
	return 0, ferrodberrs.New(ferrodberrs.Internal, "wal: quorum reported success with no successful result")
}

// AppendDetailed exposes the per-region outcome, used by callers that
// need to know exactly which regions are behind.
func (rw *ReplicatedWriter) AppendDetailed(ctx context.Context, payload []byte) ([]QuorumResult, error) {
	return WriteQuorum(ctx, rw.regions, rw.minSuccesses, rw.graceTimeout, func(ctx context.Context, region string) (int64, error) {
		return rw.writers[region].Append(ctx, payload)
	})
}

// Close stops accepting new appends on every region.
func (rw *ReplicatedWriter) Close() {
	for _, w := range rw.writers {
		w.current().Close()
	}
}
