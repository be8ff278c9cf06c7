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
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
	"github.com/ferrodb/ferrodb/objectstore"
)

// snapshotDepthTrigger is the live-manifest fragment count at which
// installLoop calls maybeFoldSnapshot. That hook leaves the manifest
// unchanged, so fragments are never folded into a snapshot and the
// fragment list keeps growing.
const snapshotDepthTrigger = 512

// pendingFragment is a fragment this writer has uploaded and is
// waiting to see integrated into the installed manifest.
type pendingFragment struct {
	ref FragmentRef
}

// ManifestManager guarantees "at most one in-flight install per
// writer": fragments are queued as they finish uploading, and a single
// goroutine drains the queue in seq_no order, building one new
// manifest per round and CAS-installing it.
type ManifestManager struct {
	store     objectstore.Store
	manifestKey string
	writerID  string
	logger    *zap.Logger

	mu         sync.Mutex
	current    *Manifest
	currentETag string
	pending    []pendingFragment
	installing bool // single in-flight install guard (writers_active == 0 or 1)
}

func NewManifestManager(store objectstore.Store, manifestKey, writerID string, logger *zap.Logger) *ManifestManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestManager{store: store, manifestKey: manifestKey, writerID: writerID, logger: logger}
}

// Open reads the current manifest. Only Initialize may create one; a
// missing manifest is a fatal "uninitialized log" condition for every
// other caller.
func (mm *ManifestManager) Open(ctx context.Context) (*Manifest, error) {
	body, etag, err := mm.store.Get(ctx, mm.manifestKey, objectstore.GetOptions{})
	if err != nil {
		if ferrodberrs.HasCode(err, ferrodberrs.NotFound) {
			return nil, ferrodberrs.New(ferrodberrs.NotFound, "wal: log not initialized")
		}
		return nil, err
	}
	m, err := UnmarshalManifest(body)
	if err != nil {
		return nil, ferrodberrs.Wrap(ferrodberrs.Internal, err, "wal: corrupt manifest")
	}
	mm.mu.Lock()
	mm.current = m
	mm.currentETag = etag
	mm.mu.Unlock()
	return m, nil
}

// Initialize creates a brand-new empty manifest, failing with
// AlreadyExists if one is already installed. Offsets and sequence
// numbers are 1-based: a fresh log's first fragment starts at offset
// 1, matching the on-disk convention offset 0 never denotes a record.
func (mm *ManifestManager) Initialize(ctx context.Context, writer string) (*Manifest, error) {
	m := &Manifest{Writer: writer, InitialOffset: 1, InitialSeqNo: 1}
	body, err := MarshalManifest(m)
	if err != nil {
		return nil, err
	}
	etag, err := mm.store.Put(ctx, mm.manifestKey, body, objectstore.PutOptions{IfNotExists: true})
	if err != nil {
		if ferrodberrs.HasCode(err, ferrodberrs.Precondition) {
			return nil, ferrodberrs.New(ferrodberrs.AlreadyExists, "wal: log already initialized")
		}
		return nil, err
	}
	mm.mu.Lock()
	mm.current = m
	mm.currentETag = etag
	mm.mu.Unlock()
	return m, nil
}

// Enqueue registers an uploaded fragment for integration into the
// next manifest round and drives the (possibly already running)
// install loop. It blocks until this fragment's ref is durably
// reflected in the installed manifest.
func (mm *ManifestManager) Enqueue(ctx context.Context, ref FragmentRef) error {
	mm.mu.Lock()
	mm.pending = append(mm.pending, pendingFragment{ref: ref})
	sort.Slice(mm.pending, func(i, j int) bool { return mm.pending[i].ref.SeqNo < mm.pending[j].ref.SeqNo })
	alreadyInstalling := mm.installing
	mm.installing = true
	mm.mu.Unlock()

	if alreadyInstalling {
		// another goroutine already owns the install loop for this
		// writer; it will pick up our fragment on its next round.
		return mm.waitUntilIntegrated(ref)
	}
	defer func() {
		mm.mu.Lock()
		mm.installing = false
		mm.mu.Unlock()
	}()
	return mm.installLoop(ctx, ref)
}

func (mm *ManifestManager) waitUntilIntegrated(ref FragmentRef) error {
	// the draining goroutine owns retries; callers here just need the
	// eventual outcome reflected in mm.current once installing flips
	// back to false. Since Go has no condvar-free poll-free wait
	// without extra plumbing, we busy-poll on a short interval — the
	// manifest batcher is local and installs complete in milliseconds.
	for {
		mm.mu.Lock()
		installing := mm.installing
		integrated := manifestHasFragment(mm.current, ref)
		mm.mu.Unlock()
		if integrated {
			return nil
		}
		if !installing {
			return ferrodberrs.New(ferrodberrs.Internal, "wal: manifest install loop exited without integrating fragment seq_no=%d", ref.SeqNo)
		}
		time.Sleep(time.Millisecond)
	}
}

func manifestHasFragment(m *Manifest, ref FragmentRef) bool {
	if m == nil {
		return false
	}
	for _, f := range m.Fragments {
		if f.SeqNo == ref.SeqNo {
			return true
		}
	}
	return false
}

// installLoop drains mm.pending in seq_no order, building and
// installing one manifest per round, until the pending queue is
// empty and target has been integrated.
func (mm *ManifestManager) installLoop(ctx context.Context, target FragmentRef) error {
	for {
		mm.mu.Lock()
		batch := mm.pending
		mm.pending = nil
		base := mm.current
		baseETag := mm.currentETag
		mm.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}

		newManifest := base.Clone()
		for _, p := range batch {
			newManifest.Fragments = append(newManifest.Fragments, p.ref)
			newManifest.AccBytes += p.ref.NumBytes
		}
		sort.Slice(newManifest.Fragments, func(i, j int) bool {
			return newManifest.Fragments[i].SeqNo < newManifest.Fragments[j].SeqNo
		})

		var setsums []Setsum
		for _, f := range newManifest.Fragments {
			setsums = append(setsums, f.Setsum)
		}
		newManifest.Setsum = XORAll(setsums)

		if len(newManifest.Fragments) >= snapshotDepthTrigger {
			maybeFoldSnapshot(newManifest)
		}

		body, err := MarshalManifest(newManifest)
		if err != nil {
			return err
		}

		etag, err := mm.store.Put(ctx, mm.manifestKey, body, objectstore.PutOptions{IfMatch: baseETag})
		if err != nil {
			if ferrodberrs.HasCode(err, ferrodberrs.Precondition) {
				// someone else installed a manifest in the meantime;
				// pull the new base and retry this round with the
				// same batch re-queued.
				refreshed, openErr := mm.Open(ctx)
				if openErr != nil {
					return openErr
				}
				_ = refreshed
				mm.mu.Lock()
				mm.pending = append(batch, mm.pending...)
				mm.mu.Unlock()
				continue
			}
			return err
		}

		mm.mu.Lock()
		mm.current = newManifest
		mm.currentETag = etag
		mm.mu.Unlock()

		if manifestHasFragment(newManifest, target) {
			mm.logger.Debug("wal: manifest installed", zap.Uint64("next_offset", newManifest.NextOffset()), zap.Int("fragments", len(newManifest.Fragments)))
		}
	}
}

// maybeFoldSnapshot is called once a manifest reaches
// snapshotDepthTrigger fragments. It does nothing: no snapshot object
// is written and m's fragments and snapshots are left as they are.
func maybeFoldSnapshot(m *Manifest) {}

// Current returns the manager's cached view of the installed
// manifest without a round-trip to the store.
func (mm *ManifestManager) Current() (*Manifest, string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.current, mm.currentETag
}
