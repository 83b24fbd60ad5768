// Package engine 客户端成长引擎：本地乐观状态 + 与权威服务端的对账
package engine

import (
	"context"
	"errors"
	"learnquest_backend/pkg/engine/cache"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/engine/store"
	"learnquest_backend/pkg/ledger"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var (
	ErrNoEnergy             = errors.New("no energy left")
	ErrAnonymous            = errors.New("operation requires a signed-in account")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrAlreadyAnswered      = errors.New("question already answered")
	ErrInvalidTransition    = errors.New("invalid session state transition")
	ErrNoQuestions          = errors.New("session has no questions")
)

const (
	DefaultEnergyPoll = time.Minute
	DefaultRetryDelay = 500 * time.Millisecond
)

type Options struct {
	Store        *store.Store
	Remote       remote.Service
	Connectivity remote.Connectivity
	Cache        *cache.QueryCache
	Clock        Clock
	Logger       *zap.Logger

	EnergyPollInterval time.Duration
	RegenInterval      time.Duration
	DailyLessonTarget  int
	DailyTestTarget    int
	// DeviceTimezone 服务端没有时区时回填
	DeviceTimezone string
	// RetryDelay 产生经验的请求遇到网络抖动时自动重试一次前的等待
	RetryDelay time.Duration
}

// Engine 组装本地状态、远端服务与各个子模块
type Engine struct {
	Store  *store.Store
	Remote remote.Service
	Cache  *cache.QueryCache
	Clock  Clock

	Reconciler *Reconciler
	Energy     *EnergyRegulator
	Daily      *DailyTracker
	Streak     *StreakTracker
	Milestones *MilestoneTracker

	conn       remote.Connectivity
	log        *zap.Logger
	retryDelay time.Duration
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{Now: opts.Clock.Now, Logger: opts.Logger})
	}
	if opts.EnergyPollInterval <= 0 {
		opts.EnergyPollInterval = DefaultEnergyPoll
	}
	if opts.RegenInterval <= 0 {
		opts.RegenInterval = ledger.DefaultRegenInterval
	}
	if opts.DailyLessonTarget <= 0 {
		opts.DailyLessonTarget = ledger.DefaultDailyLessonTarget
	}
	if opts.DailyTestTarget <= 0 {
		opts.DailyTestTarget = ledger.DefaultDailyTestTarget
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	e := &Engine{
		Store:      opts.Store,
		Remote:     opts.Remote,
		Cache:      opts.Cache,
		Clock:      opts.Clock,
		conn:       opts.Connectivity,
		log:        opts.Logger,
		retryDelay: opts.RetryDelay,
	}
	e.Reconciler = &Reconciler{e: e, deviceTimezone: opts.DeviceTimezone}
	e.Energy = &EnergyRegulator{e: e, pollInterval: opts.EnergyPollInterval, regenInterval: opts.RegenInterval}
	e.Daily = &DailyTracker{e: e, lessonTarget: opts.DailyLessonTarget, testTarget: opts.DailyTestTarget}
	e.Streak = &StreakTracker{e: e}
	e.Milestones = &MilestoneTracker{e: e}
	return e, nil
}

// Run 长驻客户端的后台循环：定期清理过期缓存并轮询体力，ctx 取消时返回
func (e *Engine) Run(ctx context.Context) {
	go e.Cache.StartSweeper(ctx, 0)
	e.Energy.Start(ctx)
}

// onlineUser 已登录且配置了远端服务时返回用户ID；匿名用户永远不访问远端
func (e *Engine) onlineUser() (uint, bool) {
	if e.Remote == nil {
		return 0, false
	}
	st := e.Store.Snapshot()
	if !st.IsAuthenticated || st.IsAnonymous || st.BoundUserID == 0 {
		return 0, false
	}
	return st.BoundUserID, true
}

func (e *Engine) reachable(ctx context.Context) bool {
	if e.conn == nil {
		return true
	}
	return e.conn.Reachable(ctx)
}

// Today 用户时区下的今天，未知时区按 UTC
func (e *Engine) Today() string {
	return ledger.LocalDay(e.Clock.Now(), e.Store.Snapshot().Timezone)
}

// Bind 登录/切换账号后调用：身份变化时清空本地数据与缓存，随后与服务端对账
func (e *Engine) Bind(ctx context.Context, userID uint, anonymous bool) (bool, error) {
	wiped := e.Store.Bind(userID, anonymous)
	if wiped {
		e.Cache.Clear()
	}
	if _, ok := e.onlineUser(); !ok {
		return wiped, nil
	}
	_, err := e.Reconciler.Sync(ctx)
	return wiped, err
}

// CompleteLesson 完成课程；已完成过的课程服务端不重复发放
func (e *Engine) CompleteLesson(ctx context.Context, lessonID string) (*remote.LessonResult, error) {
	today := e.Today()
	userID, ok := e.onlineUser()
	if !ok {
		if err := e.Store.AddXP(ledger.LessonXP); err != nil {
			return nil, err
		}
		e.Store.RecordLocalActivity(ledger.TaskLesson, today)
		st := e.Store.Snapshot()
		return &remote.LessonResult{
			LessonID:    lessonID,
			XPAwarded:   ledger.LessonXP,
			NewXP:       st.TotalXP,
			NewLevel:    st.Level(),
			StreakCount: st.StreakCount,
		}, nil
	}

	res, err := retryOnce(ctx, e.retryDelay, func() (*remote.LessonResult, error) {
		return e.Remote.CompleteLesson(ctx, userID, lessonID)
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyCompleted {
		e.Store.RecordLocalActivity(ledger.TaskLesson, today)
	}
	e.Reconciler.ApplyServerXP(res.NewXP)
	e.Reconciler.InvalidateUser(userID)
	return res, nil
}

// retryOnce 网络类错误自动重试一次，业务错误立即返回
func retryOnce[T any](ctx context.Context, delay time.Duration, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !remote.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(2),
	)
}
