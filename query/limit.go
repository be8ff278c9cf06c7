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

package query

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// SignedSet is either an Include(set) or an Exclude(set) over the
// offset-id domain: Include matches exactly the given ids, Exclude
// matches everything except the given ids (relative to maxOffset).
type SignedSet struct {
	bitmap   *roaring.Bitmap
	excluded bool
	maxID    uint32
}

func Include(set *roaring.Bitmap) SignedSet {
	return SignedSet{bitmap: set, excluded: false}
}

func Exclude(set *roaring.Bitmap, maxID uint32) SignedSet {
	return SignedSet{bitmap: set, excluded: true, maxID: maxID}
}

// rank returns the count of matched ids in [0, target].
func (s SignedSet) rank(target uint32) uint64 {
	if !s.excluded {
		return s.bitmap.Rank(target)
	}
	total := uint64(target) + 1
	return total - s.bitmap.Rank(target)
}

// contains reports whether target matches this set.
func (s SignedSet) contains(target uint32) bool {
	if !s.excluded {
		return s.bitmap.Contains(target)
	}
	return !s.bitmap.Contains(target)
}

// LimitInput is the limit operator's two offset-id sets: ids matched
// in the log tail, and ids matched in the compacted segment, plus the
// set of ids the log has overwritten (so the segment's copy is masked
// out rather than double-counted).
type LimitInput struct {
	Log       SignedSet
	Segment   SignedSet
	Mask      *roaring.Bitmap // ids present in Log that supersede a Segment entry
	MaxOffset uint32
}

// rank computes log.rank(target) + segment.rank(target) - mask.rank(target).
func (in LimitInput) rank(target uint32) uint64 {
	return in.Log.rank(target) + in.Segment.rank(target) - in.Mask.Rank(target)
}

// matches reports whether target is part of the combined stream:
// (log-matched) ∪ (segment-matched ∖ overwritten-by-log).
func (in LimitInput) matches(target uint32) bool {
	if in.Log.contains(target) {
		return true
	}
	if in.Mask.Contains(target) {
		return false
	}
	return in.Segment.contains(target)
}

// SeekAndFetch finds the smallest offset with combined rank > skip
// (the first match after the skip already-consumed ones), then
// merge-scans forward emitting up to fetch matching offsets in
// ascending order.
func SeekAndFetch(in LimitInput, skip uint64, fetch int) []uint32 {
	start := seek(in, skip)
	out := make([]uint32, 0, fetch)
	for id := start; id <= in.MaxOffset && (fetch <= 0 || len(out) < fetch); id++ {
		if in.matches(id) {
			out = append(out, id)
		}
		if id == in.MaxOffset {
			break
		}
	}
	return out
}

// seek binary-searches rank(target) over [0, maxOffset] for the
// smallest offset whose cumulative rank exceeds skip.
func seek(in LimitInput, skip uint64) uint32 {
	if skip == 0 {
		return 0
	}
	lo, hi := uint32(0), in.MaxOffset
	result := in.MaxOffset + 1 // sentinel: none found within range
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if in.rank(mid) > skip {
			result = mid
			if mid == 0 {
				break
			}
			hi = mid - 1
		} else {
			if mid == in.MaxOffset {
				break
			}
			lo = mid + 1
		}
	}
	return result
}

// ToSortedSlice is a small helper used by callers assembling a bitmap
// from scattered matches before building a SignedSet.
func ToSortedSlice(ids []uint32) []uint32 {
	out := append([]uint32(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
