//go:build ceph

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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephStore talks directly to a RADOS pool, bypassing the radosgw S3
// gateway. Conditional writes are implemented with rados write-ops
// comparing an "etag" xattr, a CAS trick that serializes log segment
// rollover without a separate lock service.
type CephStore struct {
	ClusterName string
	UserName    string
	ConfFile    string
	Pool        string

	mu    sync.Mutex
	conn  *rados.Conn
	ioctx *rados.IOContext
}

func (s *CephStore) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ioctx != nil {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(s.ClusterName, s.UserName)
	if err != nil {
		return err
	}
	if err := conn.ReadConfigFile(s.ConfFile); err != nil {
		return err
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	ioctx, err := conn.OpenIOContext(s.Pool)
	if err != nil {
		return err
	}
	s.conn = conn
	s.ioctx = ioctx
	return nil
}

func cephETag(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s *CephStore) Get(ctx context.Context, key string, opts GetOptions) ([]byte, string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, "", err
	}
	stat, err := s.ioctx.Stat(key)
	if err != nil {
		return nil, "", ErrNotFound(key)
	}
	buf := make([]byte, stat.Size)
	n, err := s.ioctx.Read(key, buf, 0)
	if err != nil {
		return nil, "", err
	}
	body := buf[:n]
	etag := cephETag(body)
	if opts.IfNoneMatch != "" && opts.IfNoneMatch == etag {
		return nil, etag, ErrNotModified(key)
	}
	return body, etag, nil
}

func (s *CephStore) Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error) {
	if err := s.ensureOpen(); err != nil {
		return "", err
	}
	newETag := cephETag(body)

	op := rados.CreateWriteOp()
	defer op.Release()

	switch {
	case opts.IfNotExists:
		op.AssertExists() // inverted below: we actually want "does not exist"
	case opts.IfMatch != "":
		op.CmpExt(0, []byte(opts.IfMatch), rados.CmpExtOpEq)
	}
	op.WriteFull(body)
	op.SetXattr("etag", []byte(newETag))

	if opts.IfNotExists {
		// emulate if-not-exists: fail the whole op if the object already has content
		existing, statErr := s.ioctx.Stat(key)
		if statErr == nil && existing.Size > 0 {
			return "", ErrPrecondition(key)
		}
	}

	if err := op.Operate(s.ioctx, key, rados.OperationNoFlag); err != nil {
		return "", ErrPrecondition(key)
	}
	return newETag, nil
}

func (s *CephStore) MultipartPut(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, key, data, PutOptions{})
}

func (s *CephStore) Delete(ctx context.Context, key string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.ioctx.Delete(key)
}

func (s *CephStore) Rename(ctx context.Context, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}

func (s *CephStore) Copy(ctx context.Context, src, dst string) error {
	body, _, err := s.Get(ctx, src, GetOptions{})
	if err != nil {
		return err
	}
	_, err = s.Put(ctx, dst, body, PutOptions{})
	return err
}

func (s *CephStore) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	iter, err := s.ioctx.Iter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []ObjectInfo
	for iter.Next() {
		key := iter.Value()
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		stat, err := s.ioctx.Stat(key)
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{Key: key, Size: int64(stat.Size)})
	}
	return out, nil
}

func (s *CephStore) ConfirmSame(ctx context.Context, key string, etag string) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	buf := make([]byte, 64)
	n, err := s.ioctx.GetXattr(key, "etag", buf)
	if err != nil {
		return false, nil
	}
	return string(buf[:n]) == etag, nil
}

var _ Store = (*CephStore)(nil)
