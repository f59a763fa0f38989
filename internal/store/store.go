// Package store provides the Redis-backed repositories for durable rider and
// room records. Records are stored as hashes under prefixed keys and listed
// with key-prefix scans. The hub never calls into this package; it exists for
// the HTTP surface and other external callers.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	riderPrefix = "rider:"
	roomPrefix  = "room:"
)

// Store wraps the Redis client shared by the repositories.
type Store struct {
	rdb *redis.Client
}

// New creates a Store connected to the given Redis address. The connection is
// lazy; call Ping to verify reachability.
func New(addr, username, password string) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Username: username,
			Password: password,
		}),
	}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Riders returns the rider repository.
func (s *Store) Riders() *RiderRepository {
	return &RiderRepository{rdb: s.rdb}
}

// Rooms returns the room repository.
func (s *Store) Rooms() *RoomRepository {
	return &RoomRepository{rdb: s.rdb}
}

// listByPrefix collects every hash stored under keys matching prefix*,
// returned as a map from the unprefixed id to the hash fields.
func listByPrefix(ctx context.Context, rdb *redis.Client, prefix string) (map[string]map[string]string, error) {
	result := make(map[string]map[string]string)

	iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		result[key[len(prefix):]] = fields
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s*: %w", prefix, err)
	}

	return result, nil
}

// setHash writes fields into the hash at key, replacing matching fields.
func setHash(ctx context.Context, rdb *redis.Client, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	if err := rdb.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
