package utils

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	StorageProviderGCS    = "gcs"
	StorageProviderMemory = "memory"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

var processMemoryStore = NewMemoryObjectStore()

// NewObjectStore returns the store selected by STORAGE_PROVIDER. The memory
// provider is one store per process so the download route sees the exports.
func NewObjectStore() ObjectStore {
	if GetStorageProvider() == StorageProviderMemory {
		return processMemoryStore
	}
	return GCSObjectStore{}
}

// OpenObject streams a stored object from the configured provider.
func OpenObject(ctx context.Context, objectName string) (io.ReadCloser, string, error) {
	if GetStorageProvider() == StorageProviderMemory {
		obj, ok := processMemoryStore.object(objectName)
		if !ok {
			return nil, "", ErrorRecordNotFound
		}
		return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
	}
	return OpenObjectFromGCS(ctx, objectName)
}

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryObjectStore keeps objects in process. Local runs and tests only.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryObjectStore) Put(_ context.Context, objectName string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryObjectStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *MemoryObjectStore) object(objectName string) (memoryObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	return obj, ok
}

func (s *MemoryObjectStore) Get(objectName string) ([]byte, bool) {
	obj, ok := s.object(objectName)
	return obj.data, ok
}

func (s *MemoryObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
