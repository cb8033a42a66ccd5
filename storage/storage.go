// Package storage emulates the platform's file storage: byte blobs
// keyed by bucket and path, held in the shared state store. Blobs are
// ephemeral per process.
package storage

import (
	"errors"
	"strings"

	"github.com/mockbase/mockbase/store"
)

var ErrObjectNotFound = errors.New("object not found")

const keyPrefix = "storage/"

type Storage struct {
	st *store.Store
}

func New(st *store.Store) *Storage {
	return &Storage{st: st}
}

func objectKey(bucket, path string) string {
	return keyPrefix + bucket + "/" + path
}

// Upload stores the object, overwriting any previous content.
func (s *Storage) Upload(bucket, path string, data []byte) {
	s.st.PutBlob(objectKey(bucket, path), data)
}

func (s *Storage) Download(bucket, path string) ([]byte, error) {
	data, ok := s.st.GetBlob(objectKey(bucket, path))
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (s *Storage) Remove(bucket, path string) error {
	if !s.st.DeleteBlob(objectKey(bucket, path)) {
		return ErrObjectNotFound
	}
	return nil
}

// List returns the paths in the bucket with the given prefix, sorted.
func (s *Storage) List(bucket, prefix string) []string {
	keys := s.st.BlobKeys(keyPrefix + bucket + "/" + prefix)
	paths := make([]string, len(keys))
	for i, k := range keys {
		paths[i] = strings.TrimPrefix(k, keyPrefix+bucket+"/")
	}
	return paths
}
