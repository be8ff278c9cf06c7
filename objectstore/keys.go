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

import "fmt"

// SegmentBlobKey builds the canonical per-tenant/database/collection/
// segment blob path.
func SegmentBlobKey(tenant, database, collectionID, segmentID, blobUUID string) string {
	return fmt.Sprintf("tenant/%s/database/%s/collection/%s/segment/%s/%s",
		tenant, database, collectionID, segmentID, blobUUID)
}

// LogFragmentKey builds the log fragment path, bucketed by
// seqNo % bucketCount to spread writes across prefixes.
func LogFragmentKey(logPrefix string, seqNo uint64, bucketCount uint64) string {
	bucket := seqNo % bucketCount
	return fmt.Sprintf("%s/log/Bucket=%d/FragmentSeqNo=%020d.parquet", logPrefix, bucket, seqNo)
}

// LogManifestKey builds the single manifest object path for a log.
func LogManifestKey(logPrefix string) string {
	return logPrefix + "/manifest/MANIFEST"
}

// LogSnapshotKey builds a snapshot object path keyed by its setsum.
func LogSnapshotKey(logPrefix string, setsum string) string {
	return fmt.Sprintf("%s/snapshot/%s.json", logPrefix, setsum)
}
