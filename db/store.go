// Package db defines the key-value store contract the core consumes: items
// addressed by a two-part key, point reads, conditional point writes, and
// paginated sort-key prefix queries. Implementations live in subpackages.
package db

import (
	"context"
	"errors"
)

// Key addresses one item.
type Key struct {
	Partition string
	Sort      string
}

// Item is a raw persisted record. Typed shapes come from normalization after
// the read, never inside a store implementation.
type Item map[string]any

// ErrConditionFailed is returned by PutIfAbsent when the key already exists.
var ErrConditionFailed = errors.New("conditional write failed: item exists")

// Page is one chunk of a prefix query. NextCursor is an opaque continuation
// token; empty means the scan is exhausted.
type Page struct {
	Items      []Item
	NextCursor string
}

// Store is the persistence contract. All I/O failures surface as
// StoreUnavailable errors, retryable by the caller; implementations never
// retry internally.
type Store interface {
	// Get returns the item at key, or nil when absent.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes the item unconditionally (single-item atomicity only; the
	// store offers no cross-item transaction).
	Put(ctx context.Context, key Key, item Item) error

	// PutIfAbsent writes only when no item exists at key, returning
	// ErrConditionFailed otherwise.
	PutIfAbsent(ctx context.Context, key Key, item Item) error

	// QueryPrefix returns items in one partition whose sort key starts with
	// prefix, in insertion order, limited per page.
	QueryPrefix(ctx context.Context, partition, prefix, cursor string, limit int) (Page, error)
}
