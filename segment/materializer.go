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

// Package segment implements compaction: folding a log chunk into a
// final per-id state and applying that state to the metadata, record,
// and vector writers that make up an immutable segment.
package segment

import "github.com/ferrodb/ferrodb/internal/ferrotypes"

// Materialize folds a batch of log operations (already in ascending
// offset order) into one final record per id. The fold rules:
//   - Upsert after Delete becomes AddNew (the id is being reborn).
//   - Update on an id with no prior state is dropped.
//   - Delete on an id with no prior state is dropped.
//   - AddNew on an already-live id acts as an overwrite (Overwrite).
func Materialize(records []ferrotypes.OperationRecord) []ferrotypes.MaterializedRecord {
	state := make(map[string]*ferrotypes.MaterializedRecord)
	order := make([]string, 0)

	for _, rec := range records {
		cur, exists := state[rec.ID]
		switch rec.Operation {
		case ferrotypes.OpAdd:
			if !exists {
				state[rec.ID] = &ferrotypes.MaterializedRecord{
					ID: rec.ID, Embedding: rec.Embedding, Metadata: rec.Metadata, Document: rec.Document,
					Final: ferrotypes.FinalAddNew,
				}
				order = append(order, rec.ID)
			} else {
				cur.Embedding = rec.Embedding
				cur.Metadata = rec.Metadata
				cur.Document = rec.Document
				cur.Final = ferrotypes.FinalOverwrite
			}
		case ferrotypes.OpUpdate:
			if !exists {
				continue // dropped: update on nonexistent
			}
			if rec.HasEmbedding() {
				cur.Embedding = rec.Embedding
			}
			mergeMetadata(cur, rec.Metadata)
			if rec.Document != nil {
				cur.Document = rec.Document
			}
			if cur.Final != ferrotypes.FinalAddNew {
				cur.Final = ferrotypes.FinalUpdate
			}
		case ferrotypes.OpUpsert:
			if !exists {
				state[rec.ID] = &ferrotypes.MaterializedRecord{
					ID: rec.ID, Embedding: rec.Embedding, Metadata: rec.Metadata, Document: rec.Document,
					Final: ferrotypes.FinalAddNew,
				}
				order = append(order, rec.ID)
				continue
			}
			if cur.Final == ferrotypes.FinalDelete {
				// reborn: treat as a fresh add, not a delete-then-update
				state[rec.ID] = &ferrotypes.MaterializedRecord{
					ID: rec.ID, Embedding: rec.Embedding, Metadata: rec.Metadata, Document: rec.Document,
					Final: ferrotypes.FinalAddNew,
				}
				continue
			}
			if rec.HasEmbedding() {
				cur.Embedding = rec.Embedding
			}
			mergeMetadata(cur, rec.Metadata)
			if rec.Document != nil {
				cur.Document = rec.Document
			}
			if cur.Final != ferrotypes.FinalAddNew {
				cur.Final = ferrotypes.FinalOverwrite
			}
		case ferrotypes.OpDelete:
			if !exists {
				continue // dropped: delete on nonexistent
			}
			cur.Final = ferrotypes.FinalDelete
		}
	}

	out := make([]ferrotypes.MaterializedRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *state[id])
	}
	return out
}

func mergeMetadata(cur *ferrotypes.MaterializedRecord, update map[string]ferrotypes.Value) {
	if len(update) == 0 {
		return
	}
	if cur.Metadata == nil {
		cur.Metadata = make(map[string]ferrotypes.Value, len(update))
	}
	for k, v := range update {
		if v.IsNil() {
			delete(cur.Metadata, k)
			continue
		}
		cur.Metadata[k] = v
	}
}
