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

// Package objectstore abstracts the durability primitive every other
// component builds on: conditional PUT, multipart upload, delete,
// rename, copy and prefix listing. Concrete backends (S3, Ceph, local
// filesystem) live alongside this interface.
package objectstore

import (
	"context"
	"io"

	"github.com/ferrodb/ferrodb/internal/ferrodberrs"
)

// PutOptions constrain a Put to a conditional write. At most one of
// IfNotExists or IfMatch may be set; both zero means unconditional.
type PutOptions struct {
	IfNotExists bool
	IfMatch     string // expected current ETag
}

// GetOptions constrain a Get.
type GetOptions struct {
	IfNoneMatch string // return NotModified if the current ETag matches
}

// ObjectInfo describes one entry returned by ListPrefix.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Store is the only durability primitive in the system; all ordering
// between participants is established through conditional Put on a
// well-known key (the manifest).
type Store interface {
	// Get returns the full object body and its current ETag. Returns
	// a NotFound error if the key does not exist, NotModified if
	// opts.IfNoneMatch matched the current ETag.
	Get(ctx context.Context, key string, opts GetOptions) ([]byte, string, error)

	// Put writes the full object body in a single shot (required for
	// conditional semantics) and returns the new ETag. Returns
	// Precondition if a conditional write loses the race.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error)

	// MultipartPut uploads body in parts; only permitted for
	// unconditional writes of objects above the backend's part-size
	// threshold.
	MultipartPut(ctx context.Context, key string, body io.Reader, size int64) (string, error)

	Delete(ctx context.Context, key string) error
	Rename(ctx context.Context, src, dst string) error
	Copy(ctx context.Context, src, dst string) error
	ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// ConfirmSame does a HEAD and compares to etag without fetching
	// the body.
	ConfirmSame(ctx context.Context, key string, etag string) (bool, error)
}

// ErrNotFound / ErrPrecondition / ErrNotModified are the canonical
// constructors backends should use so callers can rely on
// ferrodberrs.CodeOf regardless of which backend is in play.
func ErrNotFound(key string) error {
	return ferrodberrs.New(ferrodberrs.NotFound, "object store: key %q not found", key)
}

func ErrPrecondition(key string) error {
	return ferrodberrs.New(ferrodberrs.Precondition, "object store: conditional write on %q failed", key)
}

func ErrNotModified(key string) error {
	return ferrodberrs.New(ferrodberrs.Aborted, "object store: %q not modified", key)
}
