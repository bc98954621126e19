// Package memory implements the blob store in process memory for tests and
// ephemeral runs.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"flockcore/internal/blob/core"
)

var _ core.Store = (*Store)(nil)

type blob struct {
	data     []byte
	modified time.Time
}

// Store keeps blobs in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]blob
	now   func() time.Time
}

// New constructs an empty in-memory blob store.
func New() *Store {
	return &Store{
		blobs: make(map[string]blob),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores the reader's contents under key, replacing any previous blob.
func (s *Store) Put(_ context.Context, key string, r io.Reader) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := blob{data: data, modified: s.now()}
	s.blobs[key] = b
	return core.Info{Key: key, Size: int64(len(data)), LastModified: b.modified}, nil
}

// Get returns a reader over a copy of the stored bytes.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return core.Info{}, nil, core.ErrNotFound
	}
	data := append([]byte(nil), b.data...)
	info := core.Info{Key: key, Size: int64(len(data)), LastModified: b.modified}
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

// Head describes a stored blob.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return core.Info{}, core.ErrNotFound
	}
	return core.Info{Key: key, Size: int64(len(b.data)), LastModified: b.modified}, nil
}

// Delete removes a blob, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return false, nil
	}
	delete(s.blobs, key)
	return true, nil
}

// List returns blobs whose keys share prefix, sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []core.Info
	for key, b := range s.blobs {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, core.Info{Key: key, Size: int64(len(b.data)), LastModified: b.modified})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
