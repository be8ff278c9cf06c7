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

import "github.com/google/btree"

// FragmentIndex keeps one manifest's fragments ordered by start
// offset. Manifest.Index builds a fresh index on every call, so
// ReadManifest pays one tree build per read; the index is not cached
// across reads.
type FragmentIndex struct {
	tree *btree.BTreeG[FragmentRef]
}

func fragmentLess(a, b FragmentRef) bool { return a.Start < b.Start }

func NewFragmentIndex(fragments []FragmentRef) *FragmentIndex {
	tree := btree.NewG(32, fragmentLess)
	for _, f := range fragments {
		tree.ReplaceOrInsert(f)
	}
	return &FragmentIndex{tree: tree}
}

// From returns, in ascending start order, every fragment whose window
// extends past fromOffset.
func (idx *FragmentIndex) From(fromOffset uint64) []FragmentRef {
	var out []FragmentRef
	idx.tree.Ascend(func(f FragmentRef) bool {
		if f.Limit > fromOffset {
			out = append(out, f)
		}
		return true
	})
	return out
}

// Index builds a FragmentIndex over this manifest's current fragment
// list.
func (m *Manifest) Index() *FragmentIndex {
	return NewFragmentIndex(m.Fragments)
}
