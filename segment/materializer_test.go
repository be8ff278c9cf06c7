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
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
)

func strptr(s string) *string { return &s }

func TestMaterializeSimpleAdd(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "a", Operation: ferrotypes.OpAdd, Embedding: []float32{1, 2}, Document: strptr("doc-a")},
	}
	out := Materialize(records)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Final != ferrotypes.FinalAddNew {
		t.Fatalf("Final = %v, want AddNew", out[0].Final)
	}
}

func TestMaterializeUpdateOnNonexistentDropped(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "missing", Operation: ferrotypes.OpUpdate, Document: strptr("x")},
	}
	out := Materialize(records)
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0 (update on nonexistent id is dropped)", len(out))
	}
}

func TestMaterializeDeleteOnNonexistentDropped(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "missing", Operation: ferrotypes.OpDelete},
	}
	out := Materialize(records)
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0 (delete on nonexistent id is dropped)", len(out))
	}
}

func TestMaterializeAddOnLiveIDOverwrites(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "a", Operation: ferrotypes.OpAdd, Document: strptr("first")},
		{ID: "a", Operation: ferrotypes.OpAdd, Document: strptr("second")},
	}
	out := Materialize(records)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Final != ferrotypes.FinalOverwrite {
		t.Fatalf("Final = %v, want Overwrite", out[0].Final)
	}
	if *out[0].Document != "second" {
		t.Fatalf("Document = %q, want %q", *out[0].Document, "second")
	}
}

func TestMaterializeUpsertAfterDeleteIsReborn(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "a", Operation: ferrotypes.OpAdd, Document: strptr("first")},
		{ID: "a", Operation: ferrotypes.OpDelete},
		{ID: "a", Operation: ferrotypes.OpUpsert, Document: strptr("reborn")},
	}
	out := Materialize(records)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Final != ferrotypes.FinalAddNew {
		t.Fatalf("Final = %v, want AddNew (reborn after delete)", out[0].Final)
	}
	if *out[0].Document != "reborn" {
		t.Fatalf("Document = %q, want %q", *out[0].Document, "reborn")
	}
}

func TestMaterializeUpdateMergesMetadataAndClearsOnNil(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{
			ID: "a", Operation: ferrotypes.OpAdd,
			Metadata: map[string]ferrotypes.Value{
				"color": ferrotypes.StringValue("red"),
				"size":  ferrotypes.IntValue(10),
			},
		},
		{
			ID: "a", Operation: ferrotypes.OpUpdate,
			Metadata: map[string]ferrotypes.Value{
				"color": ferrotypes.StringValue("blue"),
				"size":  ferrotypes.NilValue(),
			},
		},
	}
	out := Materialize(records)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	meta := out[0].Metadata
	if !meta["color"].Equal(ferrotypes.StringValue("blue")) {
		t.Fatalf("color = %v, want blue", meta["color"])
	}
	if _, ok := meta["size"]; ok {
		t.Fatalf("size key should have been cleared by nil update")
	}
	if out[0].Final != ferrotypes.FinalAddNew {
		t.Fatalf("Final = %v, want AddNew (added in the same batch)", out[0].Final)
	}
}

func TestMaterializePreservesInputOrder(t *testing.T) {
	records := []ferrotypes.OperationRecord{
		{ID: "b", Operation: ferrotypes.OpAdd},
		{ID: "a", Operation: ferrotypes.OpAdd},
		{ID: "c", Operation: ferrotypes.OpAdd},
	}
	out := Materialize(records)
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("out[%d].ID = %q, want %q", i, out[i].ID, id)
		}
	}
}
