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
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// multipartThreshold is the size below which MultipartPut falls back
// to a single Put instead of a multipart upload.
const multipartThreshold = 64 * 1024 * 1024

// S3Config names the connection parameters for the production
// object-store backend.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	ForcePathStyle  bool
}

// S3Store is the production object-store backend.
type S3Store struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

func (s *S3Store) ensureOpen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return err
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.opened = true
	return nil
}

func cleanETag(raw *string) string {
	if raw == nil {
		return ""
	}
	return strings.Trim(*raw, `"`)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

func isPrecondition(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func (s *S3Store) Get(ctx context.Context, key string, opts GetOptions) ([]byte, string, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, "", err
	}
	in := &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key)}
	if opts.IfNoneMatch != "" {
		in.IfNoneMatch = aws.String(opts.IfNoneMatch)
	}
	resp, err := s.client.GetObject(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound(key)
		}
		var notModified *types.NotModified
		if errors.As(err, &notModified) {
			return nil, opts.IfNoneMatch, ErrNotModified(key)
		}
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, cleanETag(resp.ETag), nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, opts PutOptions) (string, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	switch {
	case opts.IfNotExists:
		in.IfNoneMatch = aws.String("*")
	case opts.IfMatch != "":
		in.IfMatch = aws.String(opts.IfMatch)
	}

	resp, err := s.client.PutObject(ctx, in)
	if err != nil {
		if isPrecondition(err) {
			return "", ErrPrecondition(key)
		}
		return "", err
	}
	return cleanETag(resp.ETag), nil
}

// MultipartPut is only used for unconditional writes of large blobs
// (segment files); conditional semantics require the single-shot Put
// path above.
func (s *S3Store) MultipartPut(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return "", err
	}
	if size < multipartThreshold {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return s.Put(ctx, key, data, PutOptions{})
	}

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}

	const partSize = 16 * 1024 * 1024
	var parts []types.CompletedPart
	buf := make([]byte, partSize)
	partNum := int32(1)
	for {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			out, upErr := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(s.cfg.Bucket),
				Key:        aws.String(key),
				UploadId:   created.UploadId,
				PartNumber: aws.Int32(partNum),
				Body:       bytes.NewReader(buf[:n]),
			})
			if upErr != nil {
				_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
					Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key), UploadId: created.UploadId,
				})
				return "", upErr
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNum)})
			partNum++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key), UploadId: created.UploadId,
			})
			return "", readErr
		}
	}

	done, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		UploadId:        created.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return "", err
	}
	return cleanETag(done.ETag), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key),
	})
	return err
}

func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.cfg.Bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(s.cfg.Bucket + "/" + src),
	})
	return err
}

func (s *S3Store) Rename(ctx context.Context, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}

func (s *S3Store) ListPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket), Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: cleanETag(obj.ETag),
			})
		}
	}
	return out, nil
}

func (s *S3Store) ConfirmSame(ctx context.Context, key string, etag string) (bool, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return false, err
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return cleanETag(head.ETag) == etag, nil
}

var _ Store = (*S3Store)(nil)
