package store

import (
	"context"
	"errors"
	"learnquest_backend/pkg/ledger"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNegativeXP = errors.New("xp must not decrease")

type Options struct {
	MaxEnergy int
	Now       func() time.Time
	Logger    *zap.Logger
}

// Store 本地成长状态的唯一入口，所有修改都经过 setter
// 修改先落内存再落盘，落盘失败只记录日志，不影响内存状态
// 订阅者按修改顺序收到通知，回调里不要同步修改 Store
type Store struct {
	mu    sync.Mutex
	state State

	// notifyMu 保证通知顺序与修改顺序一致，加锁顺序 mu -> notifyMu
	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextSub  int

	persister Persister
	maxEnergy int
	now       func() time.Time
	log       *zap.Logger
}

// Open 从持久化加载状态，没有记录时以满体力的匿名状态开始
func Open(ctx context.Context, p Persister, opts Options) (*Store, error) {
	if p == nil {
		p = NewMemoryPersister()
	}
	if opts.MaxEnergy <= 0 {
		opts.MaxEnergy = ledger.DefaultMaxEnergy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		subs:      make(map[int]func(State)),
		persister: p,
		maxEnergy: opts.MaxEnergy,
		now:       opts.Now,
		log:       opts.Logger,
	}

	state, ok, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		state = initialState(opts.MaxEnergy, opts.Now())
	}
	if state.MaxEnergy <= 0 {
		state.MaxEnergy = opts.MaxEnergy
	}
	state.CurrentEnergy = ledger.ClampEnergy(state.CurrentEnergy, state.MaxEnergy)
	s.state = state
	return s, nil
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Level() int {
	return s.Snapshot().Level()
}

// Subscribe 返回取消订阅函数
func (s *Store) Subscribe(fn func(State)) func() {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.subs, id)
		s.notifyMu.Unlock()
	}
}

func (s *Store) mutate(fn func(st *State) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.CurrentLevel = next.Level()
	s.state = next

	if err := s.persister.Save(context.Background(), next); err != nil {
		s.log.Warn("persist local state failed", zap.Error(err))
	}

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.subs[id](next.clone())
	}
	return nil
}

func (s *Store) AddXP(delta int64) error {
	if delta < 0 {
		return ErrNegativeXP
	}
	return s.mutate(func(st *State) error {
		st.TotalXP = ledger.AddXP(st.TotalXP, delta)
		return nil
	})
}

// SetTotalXP 覆盖总经验，只用于与权威数据对齐
func (s *Store) SetTotalXP(v int64) error {
	if v < 0 {
		return ErrNegativeXP
	}
	return s.mutate(func(st *State) error {
		st.TotalXP = ledger.ClampXP(v)
		return nil
	})
}

// AddPendingXP 乐观加经验并记在 attemptID 名下，直到 SettlePendingXP
func (s *Store) AddPendingXP(attemptID string, delta int64) error {
	if delta < 0 {
		return ErrNegativeXP
	}
	return s.mutate(func(st *State) error {
		before := st.TotalXP
		st.TotalXP = ledger.AddXP(st.TotalXP, delta)
		if st.PendingXP == nil {
			st.PendingXP = make(map[string]int64)
		}
		st.PendingXP[attemptID] += st.TotalXP - before
		return nil
	})
}

// SettlePendingXP 服务端确认 attemptID 后移除挂起记录，并按服务端经验对齐
func (s *Store) SettlePendingXP(attemptID string, serverXP int64) {
	_ = s.mutate(func(st *State) error {
		delete(st.PendingXP, attemptID)
		raiseConfirmed(st, serverXP)
		return nil
	})
}

// RaiseConfirmedXP 服务端经验加上仍挂起的乐观经验，高于本地时才覆盖
// 返回是否发生覆盖
func (s *Store) RaiseConfirmedXP(serverXP int64) bool {
	raised := false
	_ = s.mutate(func(st *State) error {
		raised = raiseConfirmed(st, serverXP)
		return nil
	})
	return raised
}

func raiseConfirmed(st *State, serverXP int64) bool {
	target := ledger.AddXP(serverXP, st.PendingTotal())
	if target <= st.TotalXP {
		return false
	}
	st.TotalXP = target
	return true
}

// AddLives 恢复体力，封顶 MaxEnergy，返回实际增加量
func (s *Store) AddLives(n int) int {
	added := 0
	_ = s.mutate(func(st *State) error {
		if n <= 0 {
			return nil
		}
		before := st.CurrentEnergy
		st.CurrentEnergy = ledger.ClampEnergy(st.CurrentEnergy+n, st.MaxEnergy)
		added = st.CurrentEnergy - before
		return nil
	})
	return added
}

// RemoveLives 扣减体力，最低到 0，返回实际扣减量
func (s *Store) RemoveLives(n int) int {
	removed := 0
	_ = s.mutate(func(st *State) error {
		if n <= 0 {
			return nil
		}
		before := st.CurrentEnergy
		// 满体力时开始计时
		if before >= st.MaxEnergy {
			st.EnergyUpdatedAt = s.now()
		}
		st.CurrentEnergy = ledger.ClampEnergy(st.CurrentEnergy-n, st.MaxEnergy)
		removed = before - st.CurrentEnergy
		return nil
	})
	return removed
}

// SetEnergy 用权威值覆盖体力
func (s *Store) SetEnergy(current, max int, updatedAt time.Time) {
	_ = s.mutate(func(st *State) error {
		if max > 0 {
			st.MaxEnergy = max
		}
		st.CurrentEnergy = ledger.ClampEnergy(current, st.MaxEnergy)
		if !updatedAt.IsZero() {
			st.EnergyUpdatedAt = updatedAt
		}
		return nil
	})
}

// SetStreak 用服务端的活跃集合覆盖本地
func (s *Store) SetStreak(count int, days []string, rewardClaimed bool) {
	_ = s.mutate(func(st *State) error {
		if count < 0 {
			count = 0
		}
		st.StreakCount = count
		st.ActivityDays = append([]string(nil), days...)
		sort.Strings(st.ActivityDays)
		st.WeeklyRewardClaimed = rewardClaimed
		return nil
	})
}

func (s *Store) SetClaimedMilestones(codes []string) {
	_ = s.mutate(func(st *State) error {
		st.ClaimedMilestones = append([]string(nil), codes...)
		return nil
	})
}

func (s *Store) SetTimezone(tz string) {
	_ = s.mutate(func(st *State) error {
		st.Timezone = tz
		return nil
	})
}

// SetDaily 保存远端每日进度作为兜底
func (s *Store) SetDaily(d DailySnapshot) {
	_ = s.mutate(func(st *State) error {
		st.DailyFallback = d
		return nil
	})
}

// RecordLocalActivity 本地记录一次活跃：计入当日兜底计数并维护活跃集合
// 连续天数的本地推算只在匿名或离线时有意义，联网后以服务端为准
func (s *Store) RecordLocalActivity(task ledger.TaskType, day string) {
	_ = s.mutate(func(st *State) error {
		daily := st.DailyFallback.Rollover(day)
		switch task {
		case ledger.TaskLesson:
			daily.LessonsToday++
		case ledger.TaskTest:
			daily.TestsToday++
		}
		st.DailyFallback = daily

		if st.HasActivity(day) {
			return nil
		}
		if st.HasActivity(ledger.AddDays(day, -1)) && st.StreakCount > 0 {
			st.StreakCount++
		} else {
			st.StreakCount = 1
		}
		if (st.StreakCount-1)%ledger.StreakCycleDays == 0 {
			st.WeeklyRewardClaimed = false
		}
		st.ActivityDays = append(st.ActivityDays, day)
		sort.Strings(st.ActivityDays)
		return nil
	})
}

// MarkLocalClaim 只能在服务端确认领取后调用
func (s *Store) MarkLocalClaim(task ledger.TaskType, day string) {
	_ = s.mutate(func(st *State) error {
		daily := st.DailyFallback.Rollover(day)
		switch task {
		case ledger.TaskLesson:
			daily.LessonClaimed = true
		case ledger.TaskTest:
			daily.TestClaimed = true
		}
		st.DailyFallback = daily
		return nil
	})
}

func (s *Store) MarkWeeklyClaimed() {
	_ = s.mutate(func(st *State) error {
		st.WeeklyRewardClaimed = true
		return nil
	})
}

func (s *Store) MarkMilestoneClaimed(code string) {
	_ = s.mutate(func(st *State) error {
		for _, c := range st.ClaimedMilestones {
			if c == code {
				return nil
			}
		}
		st.ClaimedMilestones = append(st.ClaimedMilestones, code)
		return nil
	})
}

// Bind 绑定身份；已绑定过其他账号时先清空本地成长数据，返回是否清空
// 首次绑定不清空，匿名期间的进度归入该账号
// userID 为 0 表示退出登录转为匿名，保留原绑定以便同一账号重新登录
func (s *Store) Bind(userID uint, anonymous bool) bool {
	wiped := false
	_ = s.mutate(func(st *State) error {
		if anonymous || userID == 0 {
			st.IsAuthenticated = false
			st.IsAnonymous = true
			return nil
		}

		if st.BoundUserID != 0 && st.BoundUserID != userID {
			s.log.Info("identity changed, wiping local progression",
				zap.Uint("previous", st.BoundUserID), zap.Uint("next", userID))
			*st = initialState(s.maxEnergy, s.now())
			wiped = true
		}
		st.BoundUserID = userID
		st.IsAuthenticated = true
		st.IsAnonymous = false
		return nil
	})
	return wiped
}
