package engine

import (
	"context"
	"learnquest_backend/pkg/engine/cache"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"

	"go.uber.org/zap"
)

// SyncResult 一次对账的结果
type SyncResult struct {
	// LocalXP 参与取大比较的本地经验，不含 PendingXP
	LocalXP    int64
	PendingXP  int64
	RemoteXP   int64
	ResolvedXP int64
	// Pushed 本地领先，已把本地值写回服务端
	Pushed bool
	// Overwritten 服务端领先，本地被覆盖
	Overwritten        bool
	TimezoneBackfilled bool
	Profile            *remote.Profile
}

// Reconciler 本地与服务端的经验对账，规则是取较大值，经验永不回退
type Reconciler struct {
	e              *Engine
	deviceTimezone string
}

// Sync 拉取服务端档案，双方经验对齐到 max(local, remote)
// 参与比较的本地值不含未确认的会话经验，那部分只随提交进入服务端
// 同时用服务端的体力、连续天数、里程碑领取与时区覆盖本地
func (r *Reconciler) Sync(ctx context.Context) (*SyncResult, error) {
	userID, ok := r.e.onlineUser()
	if !ok {
		return nil, ErrAnonymous
	}

	// 直接拉取，不用缓存里的旧值冒充对账结果
	profile, err := r.e.Remote.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.e.Cache.Set(cache.ProfileKey(userID), profile)

	st := r.e.Store.Snapshot()
	local := st.ConfirmedXP()
	res := &SyncResult{
		LocalXP:    local,
		RemoteXP:   profile.TotalXP,
		PendingXP:  st.PendingTotal(),
		ResolvedXP: st.TotalXP,
	}

	if profile.TotalXP > local {
		// 服务端领先：以服务端为准，挂起的会话经验保留在其上
		resolved := ledger.AddXP(profile.TotalXP, res.PendingXP)
		if err := r.e.Store.SetTotalXP(resolved); err != nil {
			return nil, err
		}
		res.ResolvedXP = resolved
		res.Overwritten = true
	}
	r.applyProfile(profile)

	var patch remote.StatsPatch
	dirty := false
	if local > profile.TotalXP {
		patch.TotalXP = &local
		dirty = true
	}
	if profile.Timezone == "" && r.deviceTimezone != "" && ledger.LoadTimezone(r.deviceTimezone).String() == r.deviceTimezone {
		tz := r.deviceTimezone
		patch.Timezone = &tz
		dirty = true
	}

	if dirty {
		updated, err := r.e.Remote.UpdateProfileStats(ctx, userID, patch)
		if err != nil {
			r.e.log.Warn("push local stats failed",
				zap.Uint("userID", userID), zap.Int64("localXP", local), zap.Error(err))
			res.Profile = profile
			return res, err
		}
		res.Pushed = patch.TotalXP != nil
		res.TimezoneBackfilled = patch.Timezone != nil
		r.InvalidateUser(userID)
		r.applyProfile(updated)
		r.ApplyServerXP(updated.TotalXP)
		profile = updated
	}

	res.Profile = profile
	r.e.log.Debug("progression synced",
		zap.Uint("userID", userID),
		zap.Int64("local", res.LocalXP),
		zap.Int64("pending", res.PendingXP),
		zap.Int64("remote", res.RemoteXP),
		zap.Int64("resolved", res.ResolvedXP))
	return res, nil
}

func (r *Reconciler) applyProfile(p *remote.Profile) {
	s := r.e.Store
	s.SetEnergy(p.CurrentEnergy, p.MaxEnergy, p.LastRegenTimestamp)
	s.SetStreak(p.StreakCount, p.WeeklyActivitySet, p.ClaimedFlags.WeeklyReward)
	s.SetClaimedMilestones(p.ClaimedFlags.Milestones)
	if p.Timezone != "" {
		s.SetTimezone(p.Timezone)
	}
}

// ApplyServerXP 服务端返回的经验只会让本地增长，挂起的乐观经验保留在其上
func (r *Reconciler) ApplyServerXP(xp int64) {
	r.e.Store.RaiseConfirmedXP(xp)
}

// InvalidateUser 产生经验的操作之后标记相关查询过期
func (r *Reconciler) InvalidateUser(userID uint) {
	c := r.e.Cache
	c.Invalidate(
		cache.ProfileKey(userID),
		cache.DailyKey(userID),
		cache.EnergyKey(userID),
		cache.MilestonesKey(userID),
	)
	c.InvalidatePrefix(cache.LeaderboardPrefix)
}

// Profile 缓存的服务端档案
func (r *Reconciler) Profile(ctx context.Context) (*remote.Profile, error) {
	userID, ok := r.e.onlineUser()
	if !ok {
		return nil, ErrAnonymous
	}
	return cache.Fetch(ctx, r.e.Cache, cache.ProfileKey(userID), func(ctx context.Context) (*remote.Profile, error) {
		return r.e.Remote.GetProfile(ctx, userID)
	})
}

// Leaderboard 匿名用户也可查看，但需要配置远端服务
func (r *Reconciler) Leaderboard(ctx context.Context, limit int) ([]remote.LeaderboardEntry, error) {
	if r.e.Remote == nil {
		return nil, ErrAnonymous
	}
	return cache.Fetch(ctx, r.e.Cache, cache.LeaderboardKey(limit), func(ctx context.Context) ([]remote.LeaderboardEntry, error) {
		return r.e.Remote.GetLeaderboard(ctx, limit)
	})
}
