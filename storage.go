// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"context"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
)

// S3 is the subset of *minio.Client this module needs, following the
// teacher's own "define our own interface for easier testing" pattern
// (cmd/qrank-builder/s3.go): a fake implementing just these three
// methods is enough to exercise StorageSource in tests without a real
// S3-compatible endpoint.
type S3 interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

// StorageSource resolves and reads dump files kept in S3-compatible
// object storage instead of (or alongside) the local filesystem (C12).
// It mirrors the teacher's s3.go: the resolver lists matching keys,
// and reading a file downloads it to a temp file first (NewS3Reader's
// approach) so the rest of the pipeline — seeking for partitioning,
// spawning decompressors against a real path — works unmodified.
type StorageSource struct {
	client S3
	bucket string
	prefix string
}

// NewStorageSource builds a StorageSource over bucket, restricting
// lookups to keys under keyPrefix (e.g. "dumps/enwiki/").
func NewStorageSource(client S3, bucket, keyPrefix string) *StorageSource {
	return &StorageSource{client: client, bucket: bucket, prefix: keyPrefix}
}

type storageCandidate struct {
	name string // basename, used for stem-based dedup
	key  string // full object key
	size int64
}

// listMatching returns every object under the configured prefix whose
// basename starts with namePrefix, the object-storage analogue of the
// local os.ReadDir scan in resolver.go.
func (s *StorageSource) listMatching(ctx context.Context, namePrefix string) ([]storageCandidate, error) {
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	var out []storageCandidate
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, wrapErr(KindIO, obj.Err)
		}
		name := path.Base(obj.Key)
		if namePrefix != "" && len(name) < len(namePrefix) {
			continue
		}
		if namePrefix != "" && name[:len(namePrefix)] != namePrefix {
			continue
		}
		out = append(out, storageCandidate{name: name, key: obj.Key, size: obj.Size})
	}
	return out, nil
}

// fetchLocal downloads key to a temporary file and returns its local
// path plus a cleanup function that removes the temp file; callers
// must invoke cleanup exactly once when done reading.
func (s *StorageSource) fetchLocal(ctx context.Context, key string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "wikidumpgrep-s3-*")
	if err != nil {
		return "", nil, wrapErr(KindIO, err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, wrapErr(KindIO, err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, key, tmpPath, minio.GetObjectOptions{}); err != nil {
		os.Remove(tmpPath)
		return "", nil, wrapErr(KindIO, err)
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
