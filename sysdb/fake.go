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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// Fake is an in-memory SysDB for tests: no network, no persistence,
// just the bookkeeping a compactor or orchestrator test needs to
// drive a fixture collection through a flush cycle.
type Fake struct {
	mu          sync.Mutex
	collections map[uuid.UUID]*ferrotypes.Collection
	segments    map[uuid.UUID]*ferrotypes.Segment
	lastFlush   map[string]time.Time
}

func NewFake() *Fake {
	return &Fake{
		collections: make(map[uuid.UUID]*ferrotypes.Collection),
		segments:    make(map[uuid.UUID]*ferrotypes.Segment),
		lastFlush:   make(map[string]time.Time),
	}
}

// PutCollection seeds or overwrites a fixture collection.
func (f *Fake) PutCollection(id uuid.UUID, coll ferrotypes.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll.ID = id.String()
	f.collections[id] = &coll
}

// PutSegment seeds or overwrites a fixture segment.
func (f *Fake) PutSegment(id uuid.UUID, seg ferrotypes.Segment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg.ID = id.String()
	f.segments[id] = &seg
}

func (f *Fake) GetCollections(_ context.Context, filter CollectionFilter) ([]ferrotypes.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ferrotypes.Collection
	for id, c := range f.collections {
		if filter.CollectionID != nil && *filter.CollectionID != id {
			continue
		}
		if filter.Name != "" && c.Name != filter.Name {
			continue
		}
		if filter.Tenant != "" && c.Tenant != filter.Tenant {
			continue
		}
		if filter.Database != "" && c.Database != filter.Database {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *Fake) GetSegments(_ context.Context, filter SegmentFilter) ([]ferrotypes.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ferrotypes.Segment
	for id, s := range f.segments {
		if filter.SegmentID != nil && *filter.SegmentID != id {
			continue
		}
		if filter.Type != "" && string(s.Type) != filter.Type {
			continue
		}
		if filter.Scope != "" && s.Scope != filter.Scope {
			continue
		}
		if filter.Collection != nil && s.CollectionID != filter.Collection.String() {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (f *Fake) GetLastCompactionTime(_ context.Context, tenantIDs []string) ([]TenantLastCompaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TenantLastCompaction, 0, len(tenantIDs))
	for _, t := range tenantIDs {
		out = append(out, TenantLastCompaction{TenantID: t, LastCompactionTime: f.lastFlush[t]})
	}
	return out, nil
}

func (f *Fake) FlushCompaction(_ context.Context, tenantID string, collectionID uuid.UUID, logPosition int64, collectionVersion uint32, segmentFlushInfo []SegmentFlushInfo) (FlushCompactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collectionID]
	if !ok {
		return FlushCompactionResponse{}, ferrodberrs.New(ferrodberrs.NotFound, "sysdb: collection %s not found", collectionID)
	}
	if collectionVersion != uint32(c.Version)+1 {
		return FlushCompactionResponse{}, ferrodberrs.New(ferrodberrs.VersionMismatch,
			"sysdb: collection %s expected version %d, got %d", collectionID, c.Version+1, collectionVersion)
	}
	c.Version = uint64(collectionVersion)
	c.LogPosition = uint64(logPosition)
	now := time.Now()
	f.lastFlush[tenantID] = now

	for _, sfi := range segmentFlushInfo {
		seg, ok := f.segments[sfi.SegmentID]
		if !ok {
			seg = &ferrotypes.Segment{ID: sfi.SegmentID.String(), CollectionID: collectionID.String(), Files: map[string][]string{}}
			f.segments[sfi.SegmentID] = seg
		}
		for name, paths := range sfi.Files {
			seg.Files[name] = paths
		}
		seg.Version = uint64(collectionVersion)
	}

	return FlushCompactionResponse{CollectionID: collectionID, CollectionVersion: uint64(collectionVersion), LastCompactionTime: now}, nil
}

func (f *Fake) CollectionsWithNewData(_ context.Context, minCompactionSize int64) ([]ferrotypes.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ferrotypes.Collection
	for _, c := range f.collections {
		out = append(out, *c)
	}
	_ = minCompactionSize // the fake has no byte-size tracking; returns every known collection
	return out, nil
}
