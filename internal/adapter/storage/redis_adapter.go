package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/station-pick/internal/core/domain"
)

const (
	leaseKeyPrefix    = "tray-lease:"
	snapshotKeyPrefix = "snapshot:"
	snapshotTTL       = 24 * time.Hour
)

var releaseLeaseScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]

if redis.call('GET', key) == owner then
	return redis.call('DEL', key)
end

return 0
`)

// RedisAdapter shares tray leases and location snapshots between station
// processes.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Acquire(ctx context.Context, trayID, owner string, ttl time.Duration) (bool, error) {
	key := leaseKeyPrefix + trayID

	ok, err := r.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// Re-entrant for the same owner: extend instead of failing.
	holder, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.SetNX(ctx, key, owner, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if holder != owner {
		return false, nil
	}
	return true, r.client.PExpire(ctx, key, ttl).Err()
}

func (r *RedisAdapter) Release(ctx context.Context, trayID, owner string) error {
	key := leaseKeyPrefix + trayID
	return releaseLeaseScript.Run(ctx, r.client, []string{key}, owner).Err()
}

func (r *RedisAdapter) Load(ctx context.Context, material string) (*domain.LocationSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+material).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot domain.LocationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", material, err)
	}
	return &snapshot, nil
}

func (r *RedisAdapter) Save(ctx context.Context, snapshot domain.LocationSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.Material, err)
	}
	return r.client.Set(ctx, snapshotKeyPrefix+snapshot.Material, data, snapshotTTL).Err()
}
