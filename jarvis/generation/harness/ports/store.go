package harnessports

import (
	"context"
	"time"
)

// KVEntry is one stored key/value pair.
type KVEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// KVStore persists small string values by key. Get reports ok=false for a missing key without an error.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns the entries whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]KVEntry, error)
}
