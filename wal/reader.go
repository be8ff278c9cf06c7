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

	"github.com/ferrodb/ferrodb/objectstore"
)

// Reader resolves a manifest into an ordered stream of records over
// [from, limit). It never returns duplicates or gaps: fragments are
// read in ascending seq_no order and rows are filtered to the
// requested offset window.
type Reader struct {
	store objectstore.Store
}

func NewReader(store objectstore.Store) *Reader {
	return &Reader{store: store}
}

// Record is one decoded WAL row with its offset, ready for the caller
// to unmarshal Body into an OperationRecord.
type Record struct {
	Offset      uint64
	TimestampUs uint64
	Body        []byte
}

// ReadOptions bounds a read.
type ReadOptions struct {
	FromOffset     uint64
	BatchSize      int // 0 means unbounded
	EndTimestampUs uint64 // 0 means unbounded
}

// Read resolves manifestKey and streams matching records in ascending
// offset order.
func (r *Reader) Read(ctx context.Context, manifestKey string, opts ReadOptions) ([]Record, error) {
	body, _, err := r.store.Get(ctx, manifestKey, objectstore.GetOptions{})
	if err != nil {
		return nil, err
	}
	manifest, err := UnmarshalManifest(body)
	if err != nil {
		return nil, err
	}
	return r.ReadManifest(ctx, manifest, opts)
}

// ReadManifest is Read against an already-resolved manifest, used by
// callers (like the orchestrator) that cache the manifest across
// multiple reads within one query.
func (r *Reader) ReadManifest(ctx context.Context, manifest *Manifest, opts ReadOptions) ([]Record, error) {
	frags := manifest.Index().From(opts.FromOffset)

	var out []Record
	for _, f := range frags {
		encoded, _, err := r.store.Get(ctx, f.Path, objectstore.GetOptions{})
		if err != nil {
			return nil, err
		}
		rows, err := DecodeFragment(encoded)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Offset < opts.FromOffset {
				continue
			}
			if opts.EndTimestampUs != 0 && row.TimestampUs > opts.EndTimestampUs {
				continue
			}
			out = append(out, Record{Offset: row.Offset, TimestampUs: row.TimestampUs, Body: row.Body})
			if opts.BatchSize > 0 && len(out) >= opts.BatchSize {
				return out, nil
			}
		}
	}
	return out, nil
}
