// Package cache declares the read-through caches used for tracks and cars.
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned if a key is neither cached nor loadable.
var ErrCacheMiss = errors.New("cache miss")

type (
	// Loader fetches the value for key from the backing store.
	Loader[K comparable, V any] func(ctx context.Context, key K) (*V, error)

	Cache[K comparable, V any] interface {
		Get(ctx context.Context, key K) (*V, error)
		// Invalidate drops key, the next Get loads it again.
		Invalidate(ctx context.Context, key K)
	}
)
