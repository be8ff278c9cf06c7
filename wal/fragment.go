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
	"bytes"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/snappy"
)

// FragmentRow is one parquet row: (offset, timestamp_us, body). The
// struct tags pin the on-disk schema.
type FragmentRow struct {
	Offset      uint64 `parquet:"offset"`
	TimestampUs uint64 `parquet:"timestamp_us"`
	Body        []byte `parquet:"body"`
}

// EncodeFragment serializes rows (already sorted by offset) into a
// single-row-group, snappy-compressed parquet file.
func EncodeFragment(rows []FragmentRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[FragmentRow](&buf,
		parquet.Compression(&snappy.Codec{}),
	)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFragment parses a fragment's parquet bytes back into rows,
// sorted ascending by offset (the writer always produces them sorted,
// but we re-sort defensively since bytes may come from an unfamiliar
// backend/tool).
func DecodeFragment(encoded []byte) ([]FragmentRow, error) {
	reader := parquet.NewGenericReader[FragmentRow](bytes.NewReader(encoded))
	defer reader.Close()

	total := int(reader.NumRows())
	rows := make([]FragmentRow, total)
	read := 0
	for read < total {
		n, err := reader.Read(rows[read:])
		read += n
		if err != nil {
			break
		}
	}
	rows = rows[:read]
	sort.Slice(rows, func(i, j int) bool { return rows[i].Offset < rows[j].Offset })
	return rows, nil
}

// FragmentRef is a manifest's pointer to one fragment.
type FragmentRef struct {
	Path    string `json:"path"`
	SeqNo   uint64 `json:"seq_no"`
	Start   uint64 `json:"start"` // inclusive
	Limit   uint64 `json:"limit"` // exclusive
	NumBytes int64  `json:"num_bytes"`
	Setsum  Setsum `json:"setsum"`
}

// Contains reports whether offset falls within [Start, Limit).
func (f FragmentRef) Contains(offset uint64) bool {
	return offset >= f.Start && offset < f.Limit
}
