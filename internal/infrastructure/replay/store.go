// Package replay remembers payment-proof identifiers for the replay window.
// Backed by redis so identifiers expire on their own and survive across
// gateway workers sharing one store.
package replay

import (
	"context"
	"time"

	"github.com/pylon-apis/pylon/pkg/redis"
)

const keyPrefix = "pylon:replay:"

// Store is the redis-backed replay set.
type Store struct {
	ttl time.Duration
}

// NewStore creates a replay store with the given window.
func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl}
}

// Seen reports whether the identifier was remembered within the window.
func (s *Store) Seen(ctx context.Context, id string) (bool, error) {
	return redis.Exists(ctx, keyPrefix+id)
}

// Remember inserts the identifier. Returns false when another request
// inserted it first.
func (s *Store) Remember(ctx context.Context, id string) (bool, error) {
	return redis.SetNX(ctx, keyPrefix+id, time.Now().Unix(), s.ttl)
}
