package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RoomRepository persists room records as Redis hashes under room:<id>.
type RoomRepository struct {
	rdb *redis.Client
}

// Add stores a room record only if none exists yet. Returns true when the
// room was created, false when a room with the same id was already present.
func (r *RoomRepository) Add(ctx context.Context, roomID string, fields map[string]string) (bool, error) {
	key := roomPrefix + roomID
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking room %s: %w", roomID, err)
	}
	if exists > 0 {
		return false, nil
	}
	if err := setHash(ctx, r.rdb, key, fields); err != nil {
		return false, err
	}
	return true, nil
}

// Get fetches a room record. The second return value reports whether the
// room exists.
func (r *RoomRepository) Get(ctx context.Context, roomID string) (map[string]string, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, roomPrefix+roomID).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading room %s: %w", roomID, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// Update replaces fields on an existing room record. Returns false without
// writing when the room does not exist.
func (r *RoomRepository) Update(ctx context.Context, roomID string, fields map[string]string) (bool, error) {
	key := roomPrefix + roomID
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("checking room %s: %w", roomID, err)
	}
	if exists == 0 {
		return false, nil
	}
	if err := setHash(ctx, r.rdb, key, fields); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a room record and reports whether one existed.
func (r *RoomRepository) Delete(ctx context.Context, roomID string) (bool, error) {
	deleted, err := r.rdb.Del(ctx, roomPrefix+roomID).Result()
	if err != nil {
		return false, fmt.Errorf("deleting room %s: %w", roomID, err)
	}
	return deleted > 0, nil
}

// All returns every room record keyed by room id.
func (r *RoomRepository) All(ctx context.Context) (map[string]map[string]string, error) {
	return listByPrefix(ctx, r.rdb, roomPrefix)
}
