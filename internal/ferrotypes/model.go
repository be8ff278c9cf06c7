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

package ferrotypes

// DistanceMetric selects how two vectors are compared.
type DistanceMetric string

const (
	Cosine       DistanceMetric = "cosine"
	Euclidean    DistanceMetric = "euclidean"
	InnerProduct DistanceMetric = "inner-product"
)

// IndexKind selects which ANN structure backs a collection's vector
// segment.
type IndexKind string

const (
	IndexHNSW  IndexKind = "hnsw"
	IndexSPANN IndexKind = "spann"
)

// HNSWParams configures the in-process HNSW graph.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// SPANNParams configures the centroid + posting-list index.
type SPANNParams struct {
	SearchNprobe          int
	SearchEpsilon         float64
	SplitThreshold        int
	ReassignNeighborCount int
	VectorRerankFactor    int
	CentroidRerankFactor  int
}

// IndexConfig is the union of the two supported index kinds.
type IndexConfig struct {
	Kind  IndexKind
	HNSW  HNSWParams
	SPANN SPANNParams
}

// Collection is the top-level unit of tenancy and indexing
// configuration. Collections version monotonically; every compaction
// bumps Version.
type Collection struct {
	ID             string
	Tenant         string
	Database       string
	Name           string
	Dimensionality int
	Metric         DistanceMetric
	Index          IndexConfig
	Version        uint64
	LogPosition    uint64
}

// SegmentScope partitions a collection's segments by the kind of data
// they carry.
type SegmentScope string

const (
	ScopeRecord   SegmentScope = "record"
	ScopeMetadata SegmentScope = "metadata"
	ScopeVector   SegmentScope = "vector"
)

// SegmentType names the concrete on-disk representation.
type SegmentType string

const (
	SegmentBlockfileRecord   SegmentType = "blockfile-record"
	SegmentBlockfileMetadata SegmentType = "blockfile-metadata"
	SegmentHNSWDistributed   SegmentType = "hnsw-distributed"
	SegmentSPANN             SegmentType = "spann"
)

// Segment is immutable once flushed; a new version supersedes it.
type Segment struct {
	ID           string
	CollectionID string
	Scope        SegmentScope
	Type         SegmentType
	Version      uint64
	// Files maps a logical file name to the list of blob paths that
	// back it in object storage (a file may be split across blobs).
	Files map[string][]string
}

// OperationKind is the mutation an OperationRecord applies.
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpUpdate OperationKind = "update"
	OpUpsert OperationKind = "upsert"
	OpDelete OperationKind = "delete"
)

// OperationRecord is the WAL payload: one user-visible mutation to one
// id within a collection.
type OperationRecord struct {
	ID        string
	Embedding []float32 // optional; len must equal collection dimensionality when present
	Encoding  string    // only "float32" is supported on the wire
	Metadata  map[string]Value
	Document  *string
	Operation OperationKind
}

// HasEmbedding reports whether the record carries a vector.
func (r OperationRecord) HasEmbedding() bool { return r.Embedding != nil }

// LogRecord pairs a monotonic log offset with the record it carries.
type LogRecord struct {
	LogOffset int64
	Record    OperationRecord
}

// FinalOp is the materializer's resolved final state for an id,
// folding a run of operations into one terminal action.
type FinalOp string

const (
	FinalAddNew    FinalOp = "add_new"
	FinalUpdate    FinalOp = "update"
	FinalOverwrite FinalOp = "overwrite"
	FinalDelete    FinalOp = "delete"
)

// MaterializedRecord is one id's resolved final state after folding a
// log chunk.
type MaterializedRecord struct {
	ID        string
	Embedding []float32
	Metadata  map[string]Value
	Document  *string
	Final     FinalOp
}
