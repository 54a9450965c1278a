// Package blob stores rendered version files and hands out download URLs.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
)

// Object describes a stored file.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// VersionKey returns the object key for a rendered document version. An
// empty documentID yields a preview key.
func VersionKey(organizationID, documentID, versionID, fileName string) string {
	if documentID == "" {
		return path.Join("organizations", organizationID, "previews", fileName)
	}
	return path.Join("organizations", organizationID, "documents", documentID, "versions", versionID, fileName)
}

func joinURL(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.Join(segments, "/")
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: map[string][]byte{}}
}

func (s *MemoryStore) Upload(_ context.Context, key string, data []byte, _ string) (Object, error) {
	if key == "" {
		return Object{}, fmt.Errorf("upload: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return Object{Key: key, URL: joinURL(s.baseURL, "memory", key), Size: int64(len(data))}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Get returns a stored object's bytes.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}
