/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pagecache

import (
	"context"
	lru "github.com/hashicorp/golang-lru/v2"
	"strings"
	"time"
)

// Store persists cache entries
type Store interface {
	// Get returns nil if the key is not found
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores the entry for Entry.TTL()
	Set(ctx context.Context, key string, entry Entry) error
	// DeletePaths deletes the entries for the URL paths, for all methods and query strings
	DeletePaths(ctx context.Context, paths ...string) error
	// Purge deletes all entries
	Purge(ctx context.Context) error
}

// Key is "METHOD path?query", where query params are sorted
func Key(method, path, query string) string {
	return method + " " + path + "?" + query
}

// keyPath extracts the URL path from the key
func keyPath(key string) string {
	if i := strings.IndexByte(key, ' '); i >= 0 {
		key = key[i+1:]
	}
	if i := strings.LastIndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	return key
}

// DefaultMaxEntries caps the memory store size
const DefaultMaxEntries = 10000

type memoryEntry struct {
	Entry
	expires time.Time
}

// MemoryStore is an in process LRU store. Each entry expires after its own TTL, which is checked when it is read.
type MemoryStore struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryStore creates an in process store. When full, the least recently used entry is evicted.
func NewMemoryStore(maxEntries int, now func() time.Time) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	// only fails for a non-positive size
	entries, _ := lru.New[string, memoryEntry](maxEntries)
	return &MemoryStore{entries: entries, now: now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expires) {
		s.entries.Remove(key)
		return nil, nil
	}
	e := entry.Entry
	return &e, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.entries.Add(key, memoryEntry{entry, s.now().Add(entry.TTL())})
	return nil
}

func (s *MemoryStore) DeletePaths(_ context.Context, paths ...string) error {
	targets := make(map[string]bool, len(paths))
	for _, path := range paths {
		targets[path] = true
	}
	for _, key := range s.entries.Keys() {
		if targets[keyPath(key)] {
			s.entries.Remove(key)
		}
	}
	return nil
}

func (s *MemoryStore) Purge(context.Context) error {
	s.entries.Purge()
	return nil
}

// Len returns the number of entries, including expired entries that have not been read since they expired
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
