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

// Package sysdb defines the control-plane RPC surface ferrodb's data
// plane (compactor, query orchestrator) depends on: collection and
// segment lookup, last-compaction-time reporting, and flush
// publication.
package sysdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// CollectionFilter narrows GetCollections; a zero field means
// unconstrained.
type CollectionFilter struct {
	CollectionID *uuid.UUID
	Name         string
	Tenant       string
	Database     string
}

// SegmentFilter narrows GetSegments.
type SegmentFilter struct {
	SegmentID  *uuid.UUID
	Type       string
	Scope      ferrotypes.SegmentScope
	Collection *uuid.UUID
}

// TenantLastCompaction reports the last time a tenant's data was
// compacted.
type TenantLastCompaction struct {
	TenantID           string
	LastCompactionTime time.Time
}

// SegmentFlushInfo is one segment's file manifest as of a flush.
type SegmentFlushInfo struct {
	SegmentID uuid.UUID
	Files     map[string][]string
}

// FlushCompactionResponse confirms a publish.
type FlushCompactionResponse struct {
	CollectionID      uuid.UUID
	CollectionVersion uint64
	LastCompactionTime time.Time
}

// SysDB is the control-plane client surface.
type SysDB interface {
	GetCollections(ctx context.Context, filter CollectionFilter) ([]ferrotypes.Collection, error)
	GetSegments(ctx context.Context, filter SegmentFilter) ([]ferrotypes.Segment, error)
	GetLastCompactionTime(ctx context.Context, tenantIDs []string) ([]TenantLastCompaction, error)
	FlushCompaction(ctx context.Context, tenantID string, collectionID uuid.UUID, logPosition int64, collectionVersion uint32, segmentFlushInfo []SegmentFlushInfo) (FlushCompactionResponse, error)
	// CollectionsWithNewData satisfies segment.ControlPlane: collections
	// whose log tail has grown past minCompactionSize bytes since the
	// last flush.
	CollectionsWithNewData(ctx context.Context, minCompactionSize int64) ([]ferrotypes.Collection, error)
}
