package database

import (
	"context"
	"errors"
	"fmt"
	"learnquest_backend/internal/config"
	"learnquest_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrRedisDisabled 未配置 redis.host
var ErrRedisDisabled = errors.New("redis disabled")

// InitRedis 连接失败时关闭客户端并返回错误，调用方应降级为无缓存运行
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, ErrRedisDisabled
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	logger.Log.Info("Redis connection established", zap.String("addr", addr), zap.Int("db", cfg.DB))
	return rdb, nil
}
