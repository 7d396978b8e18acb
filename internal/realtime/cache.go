package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/models"
)

// Cache 点位实时值的 Redis 热缓存
// 数据库行是权威副本，缓存供查询端低延迟读取
type Cache struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCache 创建实时缓存
func NewCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *Cache) key(pointID int64) string {
	return fmt.Sprintf("%s%d", c.config.Realtime.KeyPrefix, pointID)
}

// Set 写入实时值（带 TTL）
func (c *Cache) Set(ctx context.Context, rt *models.PointRealtime) error {
	jsonData, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime: %w", err)
	}

	ttl := time.Duration(c.config.Realtime.TTL) * time.Second
	if err := c.redisClient.Set(ctx, c.key(rt.PointID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache realtime: %w", err)
	}
	return nil
}

// Get 读取实时值，缓存未命中返回 nil
func (c *Cache) Get(ctx context.Context, pointID int64) (*models.PointRealtime, error) {
	val, err := c.redisClient.Get(ctx, c.key(pointID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached realtime: %w", err)
	}

	var rt models.PointRealtime
	if err := json.Unmarshal([]byte(val), &rt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached realtime: %w", err)
	}
	return &rt, nil
}
