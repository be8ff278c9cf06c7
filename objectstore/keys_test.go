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

package objectstore

import (
	"strings"
	"testing"
)

func TestLogFragmentKeyBucketsBySeqNo(t *testing.T) {
	k1 := LogFragmentKey("tenant/x/log", 5, 4)
	k2 := LogFragmentKey("tenant/x/log", 9, 4)
	if !strings.Contains(k1, "Bucket=1") || !strings.Contains(k2, "Bucket=1") {
		t.Fatalf("expected both seq_nos to land in Bucket=1: %q %q", k1, k2)
	}
}

func TestLogFragmentKeyZeroPadsSeqNo(t *testing.T) {
	k := LogFragmentKey("p", 7, 64)
	if !strings.Contains(k, "FragmentSeqNo=00000000000000000007.parquet") {
		t.Fatalf("key not zero-padded: %q", k)
	}
}

func TestLogManifestKey(t *testing.T) {
	if got := LogManifestKey("tenant/x/log"); got != "tenant/x/log/manifest/MANIFEST" {
		t.Fatalf("LogManifestKey = %q", got)
	}
}

func TestSegmentBlobKey(t *testing.T) {
	got := SegmentBlobKey("t", "d", "c", "s", "blob-1")
	want := "tenant/t/database/d/collection/c/segment/s/blob-1"
	if got != want {
		t.Fatalf("SegmentBlobKey = %q, want %q", got, want)
	}
}
