package objstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/sokkuri/internal/errs"
	"github.com/hyperjump/sokkuri/internal/models"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(ctx context.Context, ref models.ObjectRef) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, ok := s.buckets[ref.Bucket]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "objstore.Get", "object not found in storage")
	}
	data, ok := objects[ref.Key]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "objstore.Get", "object not found in storage")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of data.
func (s *MemoryStore) Put(ctx context.Context, ref models.ObjectRef, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[ref.Bucket]
	if !ok {
		objects = make(map[string][]byte)
		s.buckets[ref.Bucket] = objects
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	objects[ref.Key] = stored
	return nil
}

// Stat verifies the object exists.
func (s *MemoryStore) Stat(ctx context.Context, ref models.ObjectRef) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if objects, ok := s.buckets[ref.Bucket]; ok {
		if _, ok := objects[ref.Key]; ok {
			return nil
		}
	}
	return errs.New(errs.KindNotFound, "objstore.Stat", "object not found in storage")
}

// EnsureBucket creates the bucket map if missing.
func (s *MemoryStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

// PresignGet returns a stable fake URL.
func (s *MemoryStore) PresignGet(ctx context.Context, ref models.ObjectRef, expiry time.Duration) (string, error) {
	return fmt.Sprintf("http://memory.local/%s/%s", ref.Bucket, ref.Key), nil
}
