package engine

import (
	"context"
	"learnquest_backend/pkg/engine/cache"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"
	"time"

	"go.uber.org/zap"
)

// EnergyRegulator 体力扣减与恢复
// 本地先扣再推送服务端；服务端按时间恢复，客户端定期轮询覆盖本地
type EnergyRegulator struct {
	e             *Engine
	pollInterval  time.Duration
	regenInterval time.Duration
}

// Projected 按恢复规则推算 now 时刻的体力，不修改状态
func (r *EnergyRegulator) Projected(now time.Time) int {
	st := r.e.Store.Snapshot()
	v, _ := ledger.RegenerateEnergy(st.CurrentEnergy, st.MaxEnergy, st.EnergyUpdatedAt, now, r.regenInterval)
	return v
}

// NextRegenAt 下一点体力恢复时间，满体力为零值
func (r *EnergyRegulator) NextRegenAt() time.Time {
	st := r.e.Store.Snapshot()
	cur, at := ledger.RegenerateEnergy(st.CurrentEnergy, st.MaxEnergy, st.EnergyUpdatedAt, r.e.Clock.Now(), r.regenInterval)
	return ledger.NextRegenAt(cur, st.MaxEnergy, at, r.regenInterval)
}

// applyRegen 把已到期的本地恢复写回 Store
func (r *EnergyRegulator) applyRegen() int {
	st := r.e.Store.Snapshot()
	cur, at := ledger.RegenerateEnergy(st.CurrentEnergy, st.MaxEnergy, st.EnergyUpdatedAt, r.e.Clock.Now(), r.regenInterval)
	if cur != st.CurrentEnergy || !at.Equal(st.EnergyUpdatedAt) {
		r.e.Store.SetEnergy(cur, st.MaxEnergy, at)
	}
	return cur
}

// Consume 扣减 n 点体力；不足时返回 ErrNoEnergy 且不做任何修改
// 推送失败只记录日志，下次轮询以服务端为准
func (r *EnergyRegulator) Consume(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if r.applyRegen() < n {
		return ErrNoEnergy
	}
	r.e.Store.RemoveLives(n)

	userID, ok := r.e.onlineUser()
	if !ok {
		return nil
	}
	delta := -n
	profile, err := r.e.Remote.UpdateProfileStats(ctx, userID, remote.StatsPatch{EnergyDelta: &delta})
	if err != nil {
		r.e.log.Warn("push energy consumption failed",
			zap.Uint("userID", userID), zap.Int("delta", delta), zap.Error(err))
		return nil
	}
	r.e.Cache.Invalidate(cache.EnergyKey(userID), cache.ProfileKey(userID))
	r.e.Store.SetEnergy(profile.CurrentEnergy, profile.MaxEnergy, profile.LastRegenTimestamp)
	return nil
}

// Refresh 强制从服务端拉取体力；匿名用户只做本地恢复
func (r *EnergyRegulator) Refresh(ctx context.Context) (*remote.Energy, error) {
	userID, ok := r.e.onlineUser()
	if !ok {
		cur := r.applyRegen()
		st := r.e.Store.Snapshot()
		out := &remote.Energy{
			CurrentEnergy:        cur,
			MaxEnergy:            st.MaxEnergy,
			LastRegenTimestamp:   st.EnergyUpdatedAt,
			RegenIntervalSeconds: int64(r.regenInterval / time.Second),
		}
		if next := ledger.NextRegenAt(cur, st.MaxEnergy, st.EnergyUpdatedAt, r.regenInterval); !next.IsZero() {
			out.NextRegenAt = &next
		}
		return out, nil
	}

	key := cache.EnergyKey(userID)
	r.e.Cache.Invalidate(key)
	en, err := cache.Fetch(ctx, r.e.Cache, key, func(ctx context.Context) (*remote.Energy, error) {
		return r.e.Remote.GetEnergy(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	r.e.Store.SetEnergy(en.CurrentEnergy, en.MaxEnergy, en.LastRegenTimestamp)
	return en, nil
}

// Start 阻塞运行体力轮询直到 ctx 取消
func (r *EnergyRegulator) Start(ctx context.Context) {
	userID, ok := r.e.onlineUser()
	if !ok {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			r.applyRegen()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}

	r.e.Cache.Poll(ctx, cache.EnergyKey(userID), r.pollInterval,
		func(ctx context.Context) (any, error) {
			return r.e.Remote.GetEnergy(ctx, userID)
		},
		func(v any) {
			if en, ok := v.(*remote.Energy); ok {
				r.e.Store.SetEnergy(en.CurrentEnergy, en.MaxEnergy, en.LastRegenTimestamp)
			}
		})
}
