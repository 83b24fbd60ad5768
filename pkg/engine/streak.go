package engine

import (
	"context"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"
)

// DaySlot 7天周期中的一格
type DaySlot struct {
	Date    string
	Slot    int
	Active  bool
	IsToday bool
	IsBonus bool
}

// Window 当前连续周期的展示窗口
type Window struct {
	Today          string
	Start          string
	AnchorSlot     int
	StreakCount    int
	TodayActive    bool
	Days           [ledger.StreakCycleDays]DaySlot
	RewardClaimed  bool
	BonusClaimable bool
}

// ComputeWindow 以今天为锚点定位周期：今天位于第 AnchorSlot 格，窗口从 today-(slot-1) 开始
// 今天尚未活跃时按 streak+1 计算，即今天是“进行中”的那一格
func ComputeWindow(today string, streak int, days []string, rewardClaimed bool) Window {
	active := make(map[string]bool, len(days))
	for _, d := range days {
		active[d] = true
	}
	todayActive := active[today]
	slot := ledger.StreakSlot(streak, todayActive)
	start := ledger.AddDays(today, -(slot - 1))

	w := Window{
		Today:         today,
		Start:         start,
		AnchorSlot:    slot,
		StreakCount:   streak,
		TodayActive:   todayActive,
		RewardClaimed: rewardClaimed,
	}
	for i := 0; i < ledger.StreakCycleDays; i++ {
		date := ledger.AddDays(start, i)
		w.Days[i] = DaySlot{
			Date:    date,
			Slot:    i + 1,
			Active:  active[date],
			IsToday: date == today,
			IsBonus: i == ledger.StreakCycleDays-1,
		}
	}
	w.BonusClaimable = todayActive && streak > 0 && streak%ledger.StreakCycleDays == 0 && !rewardClaimed
	return w
}

type StreakTracker struct {
	e *Engine
}

// Window 基于本地状态计算；昨天和今天都没有活跃时连续天数已断
func (s *StreakTracker) Window() Window {
	st := s.e.Store.Snapshot()
	today := s.e.Today()
	streak := st.StreakCount
	if !st.HasActivity(today) && !st.HasActivity(ledger.AddDays(today, -1)) {
		streak = 0
	}
	return ComputeWindow(today, streak, st.ActivityDays, st.WeeklyRewardClaimed)
}

// ClaimBonus 领取第7天奖励，需要服务端确认
func (s *StreakTracker) ClaimBonus(ctx context.Context) (*remote.ClaimResult, error) {
	userID, ok := s.e.onlineUser()
	if !ok {
		return nil, ErrAnonymous
	}
	res, err := retryOnce(ctx, s.e.retryDelay, func() (*remote.ClaimResult, error) {
		return s.e.Remote.ClaimWeeklyReward(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if res.Status == remote.ClaimOK || res.Status == remote.ClaimAlreadyClaimed {
		s.e.Store.MarkWeeklyClaimed()
	}
	s.e.Reconciler.ApplyServerXP(res.NewXP)
	s.e.Reconciler.InvalidateUser(userID)
	return res, nil
}
