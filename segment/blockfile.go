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
	"context"
	"encoding/json"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/ferrodb/ferrodb/internal/ferrotypes"
	"github.com/ferrodb/ferrodb/objectstore"
)

// BlockfileWriter buffers materialized records into fixed-size pages,
// lz4-compresses each page as one block, and writes it to the object
// store. MetadataWriter and RecordWriter are both thin projections
// over this: one page shape for the metadata column set, one for the
// full row.
type BlockfileWriter struct {
	store    objectstore.Store
	prefix   string
	name     string
	pageSize int
	encode   func(rec ferrotypes.MaterializedRecord) (any, bool)

	pending []any
	paths   []string
}

func NewBlockfileWriter(store objectstore.Store, prefix, name string, pageSize int, encode func(ferrotypes.MaterializedRecord) (any, bool)) *BlockfileWriter {
	if pageSize <= 0 {
		pageSize = 1024
	}
	return &BlockfileWriter{store: store, prefix: prefix, name: name, pageSize: pageSize, encode: encode}
}

func (w *BlockfileWriter) Apply(rec ferrotypes.MaterializedRecord) error {
	row, ok := w.encode(rec)
	if !ok {
		return nil
	}
	w.pending = append(w.pending, row)
	if len(w.pending) >= w.pageSize {
		return w.flushPage(context.Background())
	}
	return nil
}

func (w *BlockfileWriter) flushPage(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	raw, err := json.Marshal(w.pending)
	if err != nil {
		return err
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, compressed)
	if err != nil {
		return err
	}
	// CompressBlock returns n==0 when the input is incompressible; the
	// leading byte distinguishes the two framings since the lz4 block
	// format carries no length header of its own to lean on instead.
	var body []byte
	if n == 0 {
		body = append([]byte{0}, raw...)
	} else {
		body = append([]byte{1}, compressed[:n]...)
	}
	path := fmt.Sprintf("%s/%s/page-%05d.lz4", w.prefix, w.name, len(w.paths))
	if _, err := w.store.Put(ctx, path, body, objectstore.PutOptions{}); err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.pending = w.pending[:0]
	return nil
}

func (w *BlockfileWriter) Commit() map[string][]string {
	_ = w.flushPage(context.Background())
	return map[string][]string{w.name: append([]string(nil), w.paths...)}
}

type metadataRow struct {
	ID       string                      `json:"id"`
	Metadata map[string]ferrotypes.Value `json:"metadata"`
}

// NewMetadataBlockWriter builds the concrete MetadataWriter a
// compaction target uses: one page per pageSize records, each holding
// the id and metadata map (deletes carry no metadata and are skipped).
func NewMetadataBlockWriter(store objectstore.Store, prefix string, pageSize int) *BlockfileWriter {
	return NewBlockfileWriter(store, prefix, "metadata", pageSize, func(rec ferrotypes.MaterializedRecord) (any, bool) {
		if rec.Final == ferrotypes.FinalDelete {
			return nil, false
		}
		return metadataRow{ID: rec.ID, Metadata: rec.Metadata}, true
	})
}

// NewRecordBlockWriter builds the concrete RecordWriter: one page per
// pageSize records, each holding the full materialized row (minus the
// embedding, which the vector writer owns).
func NewRecordBlockWriter(store objectstore.Store, prefix string, pageSize int) *BlockfileWriter {
	return NewBlockfileWriter(store, prefix, "record", pageSize, func(rec ferrotypes.MaterializedRecord) (any, bool) {
		rec.Embedding = nil
		return rec, true
	})
}

// DecodeBlockPage reverses flushPage's framing: a leading tag byte (0
// = stored raw, 1 = lz4 block) followed by the page body. Readers size
// their destination buffer generously since the lz4 block format
// carries no length header of its own.
func DecodeBlockPage(framed []byte, maxUncompressedSize int) ([]byte, error) {
	if len(framed) == 0 {
		return nil, nil
	}
	tag, body := framed[0], framed[1:]
	if tag == 0 {
		return body, nil
	}
	dst := make([]byte, maxUncompressedSize)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
