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
	"encoding/json"
	"sort"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// SnapshotRef points to a manifest-of-manifests, bounding the linear
// scan needed to recover a log with a long fragment history.
type SnapshotRef struct {
	Depth         int    `json:"depth"`
	PathToSnapshot string `json:"path_to_snapshot"`
	Start         uint64 `json:"start"`
	Limit         uint64 `json:"limit"`
	NumBytes      int64  `json:"num_bytes"`
	Setsum        Setsum `json:"setsum"`
}

// Manifest is the single CAS'd object describing a log's live
// fragments and snapshots.
type Manifest struct {
	Writer        string        `json:"writer"`
	Setsum        Setsum        `json:"setsum"`
	CollectedSetsum Setsum      `json:"collected_setsum"`
	AccBytes      int64         `json:"acc_bytes"`
	InitialOffset uint64        `json:"initial_offset"`
	InitialSeqNo  uint64        `json:"initial_seq_no"`
	Snapshots     []SnapshotRef `json:"snapshots"`
	Fragments     []FragmentRef `json:"fragments"`
}

// NextOffset is the offset one past the last fragment's limit, i.e.
// where the next append will land.
func (m *Manifest) NextOffset() uint64 {
	if len(m.Fragments) == 0 {
		return m.InitialOffset
	}
	return m.Fragments[len(m.Fragments)-1].Limit
}

// NextSeqNo is one past the last fragment's sequence number.
func (m *Manifest) NextSeqNo() uint64 {
	if len(m.Fragments) == 0 {
		return m.InitialSeqNo
	}
	return m.Fragments[len(m.Fragments)-1].SeqNo + 1
}

// Validate checks the manifest invariants: fragments sorted by
// seq_no, offsets contiguous and non-overlapping, and setsum closure.
func (m *Manifest) Validate() error {
	frags := append([]FragmentRef(nil), m.Fragments...)
	sort.Slice(frags, func(i, j int) bool { return frags[i].SeqNo < frags[j].SeqNo })

	expect := m.InitialOffset
	var setsums []Setsum
	for _, f := range frags {
		if f.Start != expect {
			return ferrodberrs.New(ferrodberrs.Internal, "manifest: gap or overlap at seq_no=%d: want start=%d got=%d", f.SeqNo, expect, f.Start)
		}
		if f.Limit <= f.Start {
			return ferrodberrs.New(ferrodberrs.Internal, "manifest: fragment seq_no=%d has non-positive span", f.SeqNo)
		}
		expect = f.Limit
		setsums = append(setsums, f.Setsum)
	}
	if XORAll(setsums) != m.Setsum {
		return ferrodberrs.New(ferrodberrs.Internal, "manifest: setsum closure violated")
	}
	return nil
}

// Clone deep-copies a manifest so a manifest manager round can mutate
// a working copy without racing readers of the installed manifest.
func (m *Manifest) Clone() *Manifest {
	out := *m
	out.Fragments = append([]FragmentRef(nil), m.Fragments...)
	out.Snapshots = append([]SnapshotRef(nil), m.Snapshots...)
	return &out
}

func MarshalManifest(m *Manifest) ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GarbageDescriptor declares a log-trimming plan: which fragments and
// snapshots to drop, and the replacement snapshot chain.
type GarbageDescriptor struct {
	FragmentsToDropStart uint64        `json:"fragments_to_drop_start"`
	FragmentsToDropLimit uint64        `json:"fragments_to_drop_limit"`
	FirstToKeep          uint64        `json:"first_to_keep"`
	SnapshotsToDrop       []string      `json:"snapshots_to_drop"`
	SnapshotsToMake       []SnapshotRef `json:"snapshots_to_make"`
	SnapshotForRoot       *SnapshotRef  `json:"snapshot_for_root,omitempty"`
}

// Apply returns a new manifest with fragments/snapshots named by the
// descriptor removed — used by the background GC after a garbage run
// has moved fragments into fragments_to_drop.
func (m *Manifest) Apply(gc GarbageDescriptor) *Manifest {
	out := m.Clone()

	kept := out.Fragments[:0:0]
	for _, f := range out.Fragments {
		if f.Start >= gc.FragmentsToDropStart && f.Start < gc.FragmentsToDropLimit {
			continue
		}
		kept = append(kept, f)
	}
	out.Fragments = kept
	out.InitialOffset = gc.FirstToKeep

	dropSet := make(map[string]bool, len(gc.SnapshotsToDrop))
	for _, p := range gc.SnapshotsToDrop {
		dropSet[p] = true
	}
	snaps := out.Snapshots[:0:0]
	for _, s := range out.Snapshots {
		if dropSet[s.PathToSnapshot] {
			continue
		}
		snaps = append(snaps, s)
	}
	snaps = append(snaps, gc.SnapshotsToMake...)
	out.Snapshots = snaps

	var setsums []Setsum
	for _, f := range out.Fragments {
		setsums = append(setsums, f.Setsum)
	}
	out.Setsum = XORAll(setsums)
	return out
}
