package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for cache operations
type Cache interface {
	// Get decodes the value stored under key into dest, or returns ErrCacheMiss.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value with TTL; a zero TTL uses the cache default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// Invalidate removes all keys matching a glob pattern
	Invalidate(ctx context.Context, pattern string) error

	Ping(ctx context.Context) error
	Close() error
}

// Codec defines the interface for encoding/decoding cache values
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte, dest interface{}) error
}

// JSONCodec implements Codec using JSON encoding
type JSONCodec struct{}

func (JSONCodec) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec) Decode(data []byte, dest interface{}) error {
	return json.Unmarshal(data, dest)
}

type Options struct {
	DefaultTTL time.Duration
	// Namespace is prepended to every key as "<namespace>:".
	Namespace string
	Codec     Codec
}

func DefaultOptions() *Options {
	return &Options{
		DefaultTTL: 5 * time.Minute,
		Namespace:  "notifly",
		Codec:      JSONCodec{},
	}
}
