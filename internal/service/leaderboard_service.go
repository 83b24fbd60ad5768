package service

import (
	"context"
	"encoding/json"
	"fmt"
	"learnquest_backend/internal/repository"
	"learnquest_backend/internal/util"
	"learnquest_backend/pkg/ledger"
	"learnquest_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	leaderboardVersionKey = "leaderboard:version"
	leaderboardKeyPrefix  = "leaderboard:top:"
)

type LeaderboardService struct {
	UserRepo *repository.UserRepository
	Redis    *redis.Client
	Tunables *Tunables
}

func NewLeaderboardService(userRepo *repository.UserRepository, rdb *redis.Client, tunables *Tunables) *LeaderboardService {
	return &LeaderboardService{
		UserRepo: userRepo,
		Redis:    rdb,
		Tunables: tunables,
	}
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"userId"`
	DisplayName string `json:"displayName"`
	TotalXP     int64  `json:"totalXP"`
	Level       int    `json:"level"`
}

// GetLeaderboard 按XP降序返回前 limit 名，结果按版本号缓存在 Redis
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = util.DefaultLeaderboardLimit
	}
	if limit > util.MaxLeaderboardLimit {
		limit = util.MaxLeaderboardLimit
	}

	key := ""
	if s.Redis != nil {
		version, err := s.Redis.Get(ctx, leaderboardVersionKey).Int64()
		if err != nil && err != redis.Nil {
			logger.Log.Warn("leaderboard version read failed", zap.Error(err))
		} else {
			key = fmt.Sprintf("%s%d:%d", leaderboardKeyPrefix, version, limit)
			if raw, err := s.Redis.Get(ctx, key).Bytes(); err == nil {
				var cached []LeaderboardEntry
				if json.Unmarshal(raw, &cached) == nil {
					return cached, nil
				}
			}
		}
	}

	users, err := s.UserRepo.FindTopByXP(limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(users))
	for i, user := range users {
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			UserID:      user.ID,
			DisplayName: user.Name,
			TotalXP:     user.XP,
			Level:       ledger.LevelForXP(user.XP),
		}
	}

	if key != "" {
		if raw, err := json.Marshal(entries); err == nil {
			if err := s.Redis.Set(ctx, key, raw, s.Tunables.Get().LeaderboardTTL()).Err(); err != nil {
				logger.Log.Warn("leaderboard cache write failed", zap.Error(err))
			}
		}
	}

	return entries, nil
}

// InvalidateLeaderboard 递增版本号让旧缓存失效，旧键靠 TTL 自然过期
func (s *LeaderboardService) InvalidateLeaderboard(ctx context.Context) {
	if s == nil || s.Redis == nil {
		return
	}
	if err := s.Redis.Incr(ctx, leaderboardVersionKey).Err(); err != nil {
		logger.Log.Warn("leaderboard invalidation failed", zap.Error(err))
	}
}
