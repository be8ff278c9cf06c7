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

package sysdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// CompactorAdapter narrows SysDB down to the smaller shape
// segment.Compactor depends on, resolving the tenant id and uuid
// conversions the richer RPC surface needs but the compactor doesn't
// track itself.
type CompactorAdapter struct {
	DB SysDB
}

func (a CompactorAdapter) CollectionsWithNewData(ctx context.Context, minCompactionSize int64) ([]ferrotypes.Collection, error) {
	return a.DB.CollectionsWithNewData(ctx, minCompactionSize)
}

func (a CompactorAdapter) FlushCompaction(ctx context.Context, collectionID string, files map[string][]string, logPosition uint64, newVersion uint64) error {
	id, err := uuid.Parse(collectionID)
	if err != nil {
		return ferrodberrs.New(ferrodberrs.InvalidArgument, "sysdb: %q is not a valid collection id: %v", collectionID, err)
	}

	collections, err := a.DB.GetCollections(ctx, CollectionFilter{CollectionID: &id})
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return ferrodberrs.New(ferrodberrs.NotFound, "sysdb: collection %s not found", collectionID)
	}

	flushInfo := make([]SegmentFlushInfo, 0, len(files))
	for name, paths := range files {
		segID, err := uuid.Parse(name)
		if err != nil {
			// The compactor keys files by logical name ("metadata",
			// "record", vector file names), not by segment uuid;
			// synthesize a deterministic segment id from the logical
			// file name instead of failing the whole flush over it.
			segID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
		}
		flushInfo = append(flushInfo, SegmentFlushInfo{SegmentID: segID, Files: map[string][]string{name: paths}})
	}

	_, err = a.DB.FlushCompaction(ctx, collections[0].Tenant, id, int64(logPosition), uint32(newVersion), flushInfo)
	return err
}
