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
	"sync"
	"testing"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/objectstore"
)

func newTestManifestManager(t *testing.T) *ManifestManager {
	t.Helper()
	store := objectstore.NewFileStore(t.TempDir())
	mm := NewManifestManager(store, "log/manifest/MANIFEST", "writer-1", nil)
	if _, err := mm.Initialize(context.Background(), "writer-1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return mm
}

func TestManifestManagerInitializeRejectsSecondCall(t *testing.T) {
	store := objectstore.NewFileStore(t.TempDir())
	mm := NewManifestManager(store, "log/manifest/MANIFEST", "writer-1", nil)
	ctx := context.Background()
	if _, err := mm.Initialize(ctx, "writer-1"); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	_, err := mm.Initialize(ctx, "writer-1")
	if !ferrodberrs.HasCode(err, ferrodberrs.AlreadyExists) {
		t.Fatalf("second Initialize error = %v, want AlreadyExists", err)
	}
}

func TestManifestManagerOpenUninitializedFails(t *testing.T) {
	store := objectstore.NewFileStore(t.TempDir())
	mm := NewManifestManager(store, "log/manifest/MANIFEST", "writer-1", nil)
	_, err := mm.Open(context.Background())
	if !ferrodberrs.HasCode(err, ferrodberrs.NotFound) {
		t.Fatalf("Open(uninitialized) error = %v, want NotFound", err)
	}
}

func TestManifestManagerEnqueueInstallsFragment(t *testing.T) {
	mm := newTestManifestManager(t)
	ref := FragmentRef{Path: "p0", SeqNo: 0, Start: 1, Limit: 6, Setsum: ComputeFragmentSetsum([]byte("p0"))}
	if err := mm.Enqueue(context.Background(), ref); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	current, _ := mm.Current()
	if len(current.Fragments) != 1 || current.Fragments[0].SeqNo != 0 {
		t.Fatalf("current.Fragments = %+v, want one fragment seq_no=0", current.Fragments)
	}
	if current.NextOffset() != 6 {
		t.Fatalf("NextOffset() = %d, want 6", current.NextOffset())
	}
}

func TestManifestManagerEnqueueSequentialFragments(t *testing.T) {
	mm := newTestManifestManager(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ref := FragmentRef{
			Path:   "p",
			SeqNo:  uint64(i),
			Start:  uint64(i*10) + 1,
			Limit:  uint64((i+1)*10) + 1,
			Setsum: ComputeFragmentSetsum([]byte{byte(i)}),
		}
		if err := mm.Enqueue(ctx, ref); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	current, _ := mm.Current()
	if err := current.Validate(); err != nil {
		t.Fatalf("installed manifest invalid after 5 sequential enqueues: %v", err)
	}
	if len(current.Fragments) != 5 {
		t.Fatalf("len(Fragments) = %d, want 5", len(current.Fragments))
	}
}

func TestManifestManagerEnqueueConcurrentFromManyGoroutines(t *testing.T) {
	mm := newTestManifestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			ref := FragmentRef{
				Path:   "p",
				SeqNo:  seq,
				Start:  seq*3 + 1,
				Limit:  seq*3 + 4,
				Setsum: ComputeFragmentSetsum([]byte{byte(seq)}),
			}
			errs <- mm.Enqueue(ctx, ref)
		}(uint64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Enqueue: %v", err)
		}
	}

	current, _ := mm.Current()
	if len(current.Fragments) != 10 {
		t.Fatalf("len(Fragments) = %d, want 10", len(current.Fragments))
	}
	if err := current.Validate(); err != nil {
		t.Fatalf("manifest invalid after concurrent enqueues: %v", err)
	}
}
