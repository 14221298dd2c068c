package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// 自动存档记录的过期时间，长期不活跃的房间自然清理
const archivedVersionTTL = 7 * 24 * time.Hour

// RedisActivityRepository 是 ActivityRepository 接口的 Redis 实现
type RedisActivityRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisActivityRepository 创建 RedisActivityRepository 实例
func NewRedisActivityRepository(client *redis.Client, keyPrefix string) *RedisActivityRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisActivityRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cv:"
	}
	return &RedisActivityRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisActivityRepository) archivedVersionKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:archived_version", r.keyPrefix, roomID)
}

// GetArchivedVersion 读取房间上次自动存档的版本号，没有记录时返回 0
func (r *RedisActivityRepository) GetArchivedVersion(ctx context.Context, roomID string) (uint64, error) {
	key := r.archivedVersionKey(roomID)
	version, err := parseArchivedVersion(r.client.Get(ctx, key))
	if err != nil {
		return 0, fmt.Errorf("redis: failed to get archived version for room %s from %s: %w", roomID, key, err)
	}
	return version, nil
}

// parseArchivedVersion 把 GET 的结果转成版本号，键不存在视为 0
func parseArchivedVersion(cmd *redis.StringCmd) (uint64, error) {
	val, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid archived version %q: %w", val, err)
	}
	return version, nil
}

// SetArchivedVersion 记录房间最近一次自动存档的版本号
func (r *RedisActivityRepository) SetArchivedVersion(ctx context.Context, roomID string, version uint64) error {
	key := r.archivedVersionKey(roomID)
	if err := r.client.Set(ctx, key, strconv.FormatUint(version, 10), archivedVersionTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to set archived version for room %s: %w", roomID, err)
	}
	return nil
}
