package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DanielKovacs/CoachEcho/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0, // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// Store is a thin handle around the shared Redis client that satisfies
// read-through cache interfaces (e.g. billing.KeyValueCache). Values are
// stored as JSON.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// GetJSON loads the value stored under key into v. The bool result reports
// whether the key existed.
func (s *Store) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, err := GetClient().Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		// Treat corrupted entries as a miss; the caller re-fetches and overwrites.
		return false, nil
	}
	return true, nil
}

// SetJSON stores v under key as JSON with the given TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return GetClient().Set(ctx, key, raw, ttl).Err()
}

// SetJSONNX stores v under key only if the key does not exist yet. The bool
// result reports whether the write won.
func (s *Store) SetJSONNX(ctx context.Context, key string, v interface{}, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return GetClient().SetNX(ctx, key, raw, ttl).Result()
}

// Invalidate removes the entry stored under key.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	return GetClient().Del(ctx, key).Err()
}
