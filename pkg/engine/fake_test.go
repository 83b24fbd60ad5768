package engine

import (
	"context"
	"learnquest_backend/pkg/engine/remote"
	"learnquest_backend/pkg/ledger"
	"sort"
	"sync"
	"time"
)

// manualClock 只在 Advance 时推进并触发到期的定时器
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock(t time.Time) *manualClock { return &manualClock{now: t} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// fakeRemote 内存版的权威服务，规则与服务端一致但足够简单
type fakeRemote struct {
	mu sync.Mutex

	profile     remote.Profile
	daily       remote.DailyProgress
	attempts    map[string]*remote.SubmissionResult
	milestones  []remote.Milestone
	leaderboard []remote.LeaderboardEntry

	patches        []remote.StatsPatch
	submitCalls    int
	dailyClaims    int
	rewardsGranted int
	energyCalls    int
	profileCalls   int
	// userCalls 除排行榜以外所有带用户身份的调用
	userCalls int

	// profileErr 非空时 GetProfile 返回该错误
	profileErr error

	// submitErrs 依次返回给 SubmitTestResult，用完后正常处理
	submitErrs []error
	// entered/block 非空时 SubmitTestResult 先通知再等待放行
	entered chan struct{}
	block   chan struct{}
}

func newFakeRemote(userID uint, xp int64) *fakeRemote {
	return &fakeRemote{
		profile: remote.Profile{
			UserID:        userID,
			Name:          "ada",
			TotalXP:       xp,
			CurrentLevel:  ledger.LevelForXP(xp),
			CurrentEnergy: ledger.DefaultMaxEnergy,
			MaxEnergy:     ledger.DefaultMaxEnergy,
		},
		daily: remote.DailyProgress{
			LessonTarget: ledger.DefaultDailyLessonTarget,
			TestTarget:   ledger.DefaultDailyTestTarget,
		},
		attempts: make(map[string]*remote.SubmissionResult),
	}
}

func (f *fakeRemote) xp() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile.TotalXP
}

func (f *fakeRemote) award(xp int64) {
	f.profile.TotalXP += xp
	f.profile.CurrentLevel = ledger.LevelForXP(f.profile.TotalXP)
}

func (f *fakeRemote) GetProfile(ctx context.Context, userID uint) (*remote.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := f.profile
	return &p, nil
}

func (f *fakeRemote) UpdateProfileStats(ctx context.Context, userID uint, patch remote.StatsPatch) (*remote.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.patches = append(f.patches, patch)
	if patch.TotalXP != nil && *patch.TotalXP > f.profile.TotalXP {
		f.profile.TotalXP = *patch.TotalXP
		f.profile.CurrentLevel = ledger.LevelForXP(f.profile.TotalXP)
	}
	if patch.EnergyDelta != nil {
		f.profile.CurrentEnergy = ledger.ClampEnergy(f.profile.CurrentEnergy+*patch.EnergyDelta, f.profile.MaxEnergy)
	}
	if patch.Timezone != nil {
		f.profile.Timezone = *patch.Timezone
	}
	p := f.profile
	return &p, nil
}

func (f *fakeRemote) SubmitTestResult(ctx context.Context, userID uint, req remote.TestSubmission) (*remote.SubmissionResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return nil, err
	}
	if prev, ok := f.attempts[req.AttemptID]; ok {
		replay := *prev
		replay.Replayed = true
		return &replay, nil
	}
	prevLevel := f.profile.CurrentLevel
	xp := ledger.TestXP(req.CorrectAnswers)
	f.award(xp)
	f.daily.TestsToday++
	res := &remote.SubmissionResult{
		AttemptID:     req.AttemptID,
		XPAwarded:     xp,
		NewXP:         f.profile.TotalXP,
		NewLevel:      f.profile.CurrentLevel,
		PreviousLevel: prevLevel,
		StreakCount:   f.profile.StreakCount,
	}
	f.attempts[req.AttemptID] = res
	out := *res
	return &out, nil
}

func (f *fakeRemote) CompleteLesson(ctx context.Context, userID uint, lessonID string) (*remote.LessonResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.award(ledger.LessonXP)
	f.daily.LessonsToday++
	return &remote.LessonResult{
		LessonID:  lessonID,
		XPAwarded: ledger.LessonXP,
		NewXP:     f.profile.TotalXP,
		NewLevel:  f.profile.CurrentLevel,
	}, nil
}

func (f *fakeRemote) GetDailyProgress(ctx context.Context, userID uint) (*remote.DailyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	d := f.daily
	d.LessonState = ledger.DailyTaskState(d.LessonsToday, d.LessonTarget, d.LessonClaimed)
	d.TestState = ledger.DailyTaskState(d.TestsToday, d.TestTarget, d.TestClaimed)
	return &d, nil
}

func (f *fakeRemote) ClaimDailyTask(ctx context.Context, userID uint, task ledger.TaskType) (*remote.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.dailyClaims++
	claimed := &f.daily.TestClaimed
	count, target := f.daily.TestsToday, f.daily.TestTarget
	if task == ledger.TaskLesson {
		claimed = &f.daily.LessonClaimed
		count, target = f.daily.LessonsToday, f.daily.LessonTarget
	}
	if *claimed {
		return &remote.ClaimResult{Status: remote.ClaimAlreadyClaimed, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
	}
	if count < target {
		return nil, &remote.StatusError{Status: 422, Message: "task not completed"}
	}
	*claimed = true
	reward := ledger.DailyRewardXP(task)
	f.award(reward)
	f.rewardsGranted++
	return &remote.ClaimResult{Status: remote.ClaimOK, XPAwarded: reward, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
}

func (f *fakeRemote) GetEnergy(ctx context.Context, userID uint) (*remote.Energy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.energyCalls++
	return &remote.Energy{
		CurrentEnergy:      f.profile.CurrentEnergy,
		MaxEnergy:          f.profile.MaxEnergy,
		LastRegenTimestamp: f.profile.LastRegenTimestamp,
	}, nil
}

func (f *fakeRemote) GetLeaderboard(ctx context.Context, limit int) ([]remote.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]remote.LeaderboardEntry(nil), f.leaderboard...)
	sort.Slice(out, func(i, j int) bool { return out[i].TotalXP > out[j].TotalXP })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) ClaimWeeklyReward(ctx context.Context, userID uint) (*remote.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.profile.ClaimedFlags.WeeklyReward {
		return &remote.ClaimResult{Status: remote.ClaimAlreadyClaimed, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
	}
	if f.profile.StreakCount == 0 || f.profile.StreakCount%ledger.StreakCycleDays != 0 {
		return nil, &remote.StatusError{Status: 422, Message: "not eligible"}
	}
	f.profile.ClaimedFlags.WeeklyReward = true
	f.award(ledger.WeeklyStreakRewardXP)
	f.rewardsGranted++
	return &remote.ClaimResult{Status: remote.ClaimOK, XPAwarded: ledger.WeeklyStreakRewardXP, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
}

func (f *fakeRemote) ListMilestones(ctx context.Context, userID uint) ([]remote.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	return append([]remote.Milestone(nil), f.milestones...), nil
}

func (f *fakeRemote) ClaimMilestone(ctx context.Context, userID uint, code string) (*remote.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	for i := range f.milestones {
		m := &f.milestones[i]
		if m.Code != code {
			continue
		}
		if m.IsClaimed {
			return &remote.ClaimResult{Status: remote.ClaimAlreadyClaimed, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
		}
		if !m.IsReached {
			return nil, &remote.StatusError{Status: 422, Message: "not eligible"}
		}
		m.IsClaimed = true
		f.award(m.XPReward)
		f.rewardsGranted++
		f.profile.ClaimedFlags.Milestones = append(f.profile.ClaimedFlags.Milestones, code)
		return &remote.ClaimResult{Status: remote.ClaimOK, XPAwarded: m.XPReward, NewXP: f.profile.TotalXP, NewLevel: f.profile.CurrentLevel}, nil
	}
	return nil, &remote.StatusError{Status: 404, Message: "milestone not found"}
}
