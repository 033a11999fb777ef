// Package memory provides an in-process Store with the same semantics as the
// DynamoDB implementation: insertion-ordered partitions, prefix queries with
// pagination, and put-if-absent conditional writes. Used by tests, local
// development and the offline CLI.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"finanzas-sd/db"
)

type entry struct {
	sort string
	item db.Item
}

// Store keeps every partition as an insertion-ordered slice.
type Store struct {
	mu         sync.RWMutex
	partitions map[string][]entry
}

func NewStore() *Store {
	return &Store{partitions: make(map[string][]entry)}
}

func (s *Store) Get(_ context.Context, key db.Key) (db.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.partitions[key.Partition] {
		if e.sort == key.Sort {
			return cloneItem(e.item), nil
		}
	}
	return nil, nil
}

func (s *Store) Put(_ context.Context, key db.Key, item db.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.partitions[key.Partition]
	for i, e := range part {
		if e.sort == key.Sort {
			part[i].item = cloneItem(item)
			return nil
		}
	}
	s.partitions[key.Partition] = append(part, entry{sort: key.Sort, item: cloneItem(item)})
	return nil
}

func (s *Store) PutIfAbsent(_ context.Context, key db.Key, item db.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.partitions[key.Partition] {
		if e.sort == key.Sort {
			return db.ErrConditionFailed
		}
	}
	s.partitions[key.Partition] = append(s.partitions[key.Partition], entry{sort: key.Sort, item: cloneItem(item)})
	return nil
}

func (s *Store) QueryPrefix(_ context.Context, partition, prefix, cursor string, limit int) (db.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if cursor != "" {
		if i, err := strconv.Atoi(cursor); err == nil {
			start = i
		}
	}
	if limit <= 0 {
		limit = 100
	}

	part := s.partitions[partition]
	page := db.Page{}
	scanned := start
	for _, e := range part[min(start, len(part)):] {
		scanned++
		if !strings.HasPrefix(e.sort, prefix) {
			continue
		}
		page.Items = append(page.Items, cloneItem(e.item))
		if len(page.Items) == limit {
			break
		}
	}
	if scanned < len(part) {
		page.NextCursor = strconv.Itoa(scanned)
	}
	return page, nil
}

func cloneItem(item db.Item) db.Item {
	out := make(db.Item, len(item))
	for k, v := range item {
		if nested, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(nested))
			for nk, nv := range nested {
				inner[nk] = nv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}
