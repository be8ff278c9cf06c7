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

import "testing"

func TestFragmentIndexFromOrdersAscending(t *testing.T) {
	frags := []FragmentRef{
		{SeqNo: 2, Start: 20, Limit: 30},
		{SeqNo: 0, Start: 0, Limit: 10},
		{SeqNo: 1, Start: 10, Limit: 20},
	}
	idx := NewFragmentIndex(frags)
	out := idx.From(0)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for i, f := range out {
		if f.Start != uint64(i*10) {
			t.Fatalf("out[%d].Start = %d, want %d (not ascending)", i, f.Start, i*10)
		}
	}
}

func TestFragmentIndexFromExcludesFullyConsumedFragments(t *testing.T) {
	frags := []FragmentRef{
		{SeqNo: 0, Start: 0, Limit: 10},
		{SeqNo: 1, Start: 10, Limit: 20},
	}
	idx := NewFragmentIndex(frags)
	out := idx.From(10)
	if len(out) != 1 || out[0].SeqNo != 1 {
		t.Fatalf("From(10) = %+v, want only seq_no 1", out)
	}
}

func TestManifestIndexBuildsOverCurrentFragments(t *testing.T) {
	m := buildValidManifest()
	idx := m.Index()
	out := idx.From(0)
	if len(out) != len(m.Fragments) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(m.Fragments))
	}
}
