// SPDX-FileCopyrightText: 2024 The Wikidumpgrep Authors
// SPDX-License-Identifier: MIT

package wikidumpgrep

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
)

// fakeS3 is a minimal in-memory double for the S3 interface, following
// this teacher repo's own FakeS3 test double in s3_test.go.
type fakeS3 struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{data: make(map[string][]byte)} }

func (s *fakeS3) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := make(chan minio.ObjectInfo, len(s.data))
	go func() {
		defer close(ch)
		for key, data := range s.data {
			if strings.HasPrefix(key, opts.Prefix) {
				ch <- minio.ObjectInfo{Key: key, Size: int64(len(data))}
			}
		}
	}()
	return ch
}

func (s *fakeS3) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	if !ok {
		return minio.ObjectInfo{}, fmt.Errorf("object not found: %s", objectName)
	}
	return minio.ObjectInfo{Key: objectName, Size: int64(len(data))}, nil
}

func (s *fakeS3) FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	if !ok {
		return fmt.Errorf("object not found: %s", objectName)
	}
	return os.WriteFile(filePath, data, 0644)
}

func TestStorageSourceListMatching(t *testing.T) {
	s3 := newFakeS3()
	s3.data["dumps/wiki-20200101.xml.bz2"] = []byte("a")
	s3.data["dumps/wiki-20200201.xml.bz2"] = []byte("b")
	s3.data["dumps/other-20200101.xml.bz2"] = []byte("c")

	store := NewStorageSource(s3, "bucket", "dumps/")
	cands, err := store.listMatching(context.Background(), "wiki-")
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(cands), cands)
	}
}

func TestStorageSourceFetchLocal(t *testing.T) {
	s3 := newFakeS3()
	s3.data["dumps/wiki.xml"] = []byte("hello world")

	store := NewStorageSource(s3, "bucket", "dumps/")
	path, cleanup, err := store.fetchLocal(context.Background(), "dumps/wiki.xml")
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected temp file removed after cleanup, stat err = %v", err)
	}
}

func TestStorageSourceFetchLocalMissingObject(t *testing.T) {
	s3 := newFakeS3()
	store := NewStorageSource(s3, "bucket", "dumps/")
	_, _, err := store.fetchLocal(context.Background(), "dumps/nope.xml")
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}
