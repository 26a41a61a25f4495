package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredProvider fronts a shared cache with a process-local one. Reads try the local layer
// first; shared hits are copied back into it with localTTL.
type LayeredProvider struct {
	local    Provider
	shared   Provider
	localTTL time.Duration
}

// NewLayeredProvider combines local and shared. localTTL caps the lifetime of local entries;
// with zero, local writes follow the Set TTL and backfilled entries never expire.
func NewLayeredProvider(local, shared Provider, localTTL time.Duration) *LayeredProvider {
	return &LayeredProvider{local: local, shared: shared, localTTL: localTTL}
}

// Get reads through both layers.
func (l *LayeredProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := l.local.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := l.shared.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = l.local.Set(ctx, key, value, l.localTTL)
	return value, nil
}

// Set writes both layers. The local write always succeeds; a shared failure is returned.
func (l *LayeredProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := ttl
	if l.localTTL > 0 && (ttl <= 0 || l.localTTL < ttl) {
		localTTL = l.localTTL
	}
	_ = l.local.Set(ctx, key, value, localTTL)
	return l.shared.Set(ctx, key, value, ttl)
}

// Delete removes key from both layers.
func (l *LayeredProvider) Delete(ctx context.Context, key string) error {
	return errors.Join(l.local.Delete(ctx, key), l.shared.Delete(ctx, key))
}

// Clear empties both layers.
func (l *LayeredProvider) Clear(ctx context.Context) error {
	return errors.Join(l.local.Clear(ctx), l.shared.Clear(ctx))
}

// Close closes both layers.
func (l *LayeredProvider) Close() error {
	return errors.Join(l.local.Close(), l.shared.Close())
}
