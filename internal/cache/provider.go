package cache

import (
	"context"
	"errors"
	"time"
)

// Provider stores analysis envelopes. Implementations synchronise internally; callers treat
// every error as a degraded lookup and carry on.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Delete is a no-op for the noop cache.
func (NoopProvider) Delete(context.Context, string) error { return nil }

// Clear is a no-op for the noop cache.
func (NoopProvider) Clear(context.Context) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
