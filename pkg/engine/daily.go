package engine

import (
	"context"
	"fmt"
	"learnquest_backend/pkg/engine/cache"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/engine/store"
	"learnquest_backend/pkg/ledger"

	"go.uber.org/zap"
)

// DailyView 展示用的每日进度
type DailyView struct {
	remote.DailyProgress
	// FromFallback 远端不可用或匿名时来自本地兜底
	FromFallback bool
}

type DailyTracker struct {
	e            *Engine
	lessonTarget int
	testTarget   int
}

// Progress 今天的任务进度；远端返回的日期不是今天时视为新的一天，计数归零
func (d *DailyTracker) Progress(ctx context.Context) (*DailyView, error) {
	today := d.e.Today()
	userID, ok := d.e.onlineUser()
	if !ok {
		return d.fallback(today), nil
	}

	key := cache.DailyKey(userID)
	fetch := func(ctx context.Context) (*remote.DailyProgress, error) {
		return d.e.Remote.GetDailyProgress(ctx, userID)
	}
	dp, err := cache.Fetch(ctx, d.e.Cache, key, fetch)
	if err == nil && dp.Date != today {
		d.e.Cache.Invalidate(key)
		dp, err = cache.Fetch(ctx, d.e.Cache, key, fetch)
	}
	if err != nil {
		d.e.log.Debug("daily progress unavailable, using local fallback", zap.Error(err))
		return d.fallback(today), nil
	}
	if dp.Date != today {
		return d.fallback(today), nil
	}

	d.e.Store.SetDaily(store.DailySnapshot{
		Date:          dp.Date,
		LessonsToday:  dp.LessonsToday,
		TestsToday:    dp.TestsToday,
		LessonClaimed: dp.LessonClaimed,
		TestClaimed:   dp.TestClaimed,
	})
	return &DailyView{DailyProgress: *dp}, nil
}

func (d *DailyTracker) fallback(today string) *DailyView {
	snap := d.e.Store.Snapshot().DailyFallback.Rollover(today)
	return &DailyView{
		DailyProgress: remote.DailyProgress{
			Date:          snap.Date,
			LessonsToday:  snap.LessonsToday,
			TestsToday:    snap.TestsToday,
			LessonTarget:  d.lessonTarget,
			TestTarget:    d.testTarget,
			LessonClaimed: snap.LessonClaimed,
			TestClaimed:   snap.TestClaimed,
			LessonState:   ledger.DailyTaskState(snap.LessonsToday, d.lessonTarget, snap.LessonClaimed),
			TestState:     ledger.DailyTaskState(snap.TestsToday, d.testTarget, snap.TestClaimed),
		},
		FromFallback: true,
	}
}

// Claim 领取每日任务奖励；本地只在服务端确认后标记已领取
func (d *DailyTracker) Claim(ctx context.Context, task ledger.TaskType) (*remote.ClaimResult, error) {
	if !task.Valid() {
		return nil, fmt.Errorf("invalid task type %q", task)
	}
	userID, ok := d.e.onlineUser()
	if !ok {
		return nil, ErrAnonymous
	}

	today := d.e.Today()
	res, err := retryOnce(ctx, d.e.retryDelay, func() (*remote.ClaimResult, error) {
		return d.e.Remote.ClaimDailyTask(ctx, userID, task)
	})
	if err != nil {
		return nil, err
	}
	if res.Status == remote.ClaimOK || res.Status == remote.ClaimAlreadyClaimed {
		d.e.Store.MarkLocalClaim(task, today)
	}
	d.e.Reconciler.ApplyServerXP(res.NewXP)
	d.e.Reconciler.InvalidateUser(userID)
	return res, nil
}
