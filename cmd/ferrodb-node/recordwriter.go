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
	"sync"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/segment"
)

// liveRecordWriter wraps a blockfile RecordWriter and mirrors every
// applied record into an in-memory table keyed by vector point key, so
// the query orchestrator's Projector can resolve a just-compacted
// segment hit without re-reading the blockfile pages it just wrote.
type liveRecordWriter struct {
	inner *segment.BlockfileWriter
	ids   fnvIDMapper

	mu   *sync.RWMutex
	live map[uint64]ferrotypes.MaterializedRecord
}

func newLiveRecordWriter(inner *segment.BlockfileWriter, mu *sync.RWMutex, live map[uint64]ferrotypes.MaterializedRecord) *liveRecordWriter {
	return &liveRecordWriter{inner: inner, mu: mu, live: live}
}

func (l *liveRecordWriter) Apply(rec ferrotypes.MaterializedRecord) error {
	if err := l.inner.Apply(rec); err != nil {
		return err
	}
	key := l.ids.KeyFor(rec.ID)
	l.mu.Lock()
	if rec.Final == ferrotypes.FinalDelete {
		delete(l.live, key)
	} else {
		l.live[key] = rec
	}
	l.mu.Unlock()
	return nil
}

func (l *liveRecordWriter) Commit() map[string][]string {
	return l.inner.Commit()
}
