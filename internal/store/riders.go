package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RiderRepository persists rider records as Redis hashes under rider:<id>.
type RiderRepository struct {
	rdb *redis.Client
}

// Save creates or updates a rider record. Existing fields not present in the
// update are left in place, matching hash-merge semantics.
func (r *RiderRepository) Save(ctx context.Context, riderID string, fields map[string]string) error {
	return setHash(ctx, r.rdb, riderPrefix+riderID, fields)
}

// Get fetches a rider record. The second return value reports whether the
// rider exists.
func (r *RiderRepository) Get(ctx context.Context, riderID string) (map[string]string, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, riderPrefix+riderID).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading rider %s: %w", riderID, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// Delete removes a rider record and reports whether one existed.
func (r *RiderRepository) Delete(ctx context.Context, riderID string) (bool, error) {
	deleted, err := r.rdb.Del(ctx, riderPrefix+riderID).Result()
	if err != nil {
		return false, fmt.Errorf("deleting rider %s: %w", riderID, err)
	}
	return deleted > 0, nil
}

// All returns every rider record keyed by rider id.
func (r *RiderRepository) All(ctx context.Context) (map[string]map[string]string, error) {
	return listByPrefix(ctx, r.rdb, riderPrefix)
}
