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
	"time"

	"github.com/launix-de/NonLockingReadMap"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

// cachedCollection adapts ferrotypes.Collection to NonLockingReadMap's
// KeyGetter contract: keyed by collection id, sized roughly for the
// map's own bookkeeping.
type cachedCollection struct {
	ferrotypes.Collection
}

func (c cachedCollection) GetKey() string { return c.ID }

func (c cachedCollection) ComputeSize() uint {
	return uint(64 + len(c.ID) + len(c.Name) + len(c.Tenant) + len(c.Database))
}

// Cache fronts a SysDB with a read-optimized collection lookup: the
// orchestrator and compactor both resolve a collection by id on every
// request, while the control plane itself only changes that mapping
// on create, delete, or flush. NonLockingReadMap is built for exactly
// this read-often/write-rarely shape: Get never blocks a concurrent
// Refresh.
type Cache struct {
	db  SysDB
	tbl NonLockingReadMap.NonLockingReadMap[cachedCollection, string]
}

func NewCache(db SysDB) *Cache {
	return &Cache{db: db, tbl: NonLockingReadMap.New[cachedCollection, string]()}
}

// Get returns the cached collection for id, if Refresh has seen it.
func (c *Cache) Get(id string) (ferrotypes.Collection, bool) {
	entry := c.tbl.Get(id)
	if entry == nil {
		return ferrotypes.Collection{}, false
	}
	return entry.Collection, true
}

// Refresh reloads every collection from the control plane and
// replaces the cached entries. Safe to call concurrently with Get;
// entries are replaced one at a time, so a concurrent reader may see
// some entries refreshed and others not yet.
func (c *Cache) Refresh(ctx context.Context) error {
	collections, err := c.db.GetCollections(ctx, CollectionFilter{})
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(collections))
	for _, coll := range collections {
		seen[coll.ID] = true
		c.tbl.Set(&cachedCollection{Collection: coll})
	}
	for _, existing := range c.tbl.GetAll() {
		if !seen[existing.ID] {
			c.tbl.Remove(existing.ID)
		}
	}
	return nil
}

// RefreshLoop calls Refresh on interval until ctx is cancelled. A
// failed Refresh is dropped silently; the next tick tries again.
func (c *Cache) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
