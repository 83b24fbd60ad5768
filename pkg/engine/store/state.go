package store

import (
	"learnquest_backend/pkg/ledger"
	"time"
)

// DailySnapshot 本地兜底的每日进度，远端不可用或匿名用户时使用
type DailySnapshot struct {
	Date          string `json:"date"`
	LessonsToday  int    `json:"lessonsToday"`
	TestsToday    int    `json:"testsToday"`
	LessonClaimed bool   `json:"lessonClaimed"`
	TestClaimed   bool   `json:"testClaimed"`
}

// Rollover 日期不同则返回新一天的空快照，原快照不变
func (d DailySnapshot) Rollover(today string) DailySnapshot {
	if d.Date == today {
		return d
	}
	return DailySnapshot{Date: today}
}

// State 本地持久化的成长状态
// 等级不单独保存，CurrentLevel 只在落盘时由 TotalXP 计算写入
type State struct {
	TotalXP         int64     `json:"totalXP"`
	CurrentLevel    int       `json:"currentLevel"`
	CurrentEnergy   int       `json:"currentEnergy"`
	MaxEnergy       int       `json:"maxEnergy"`
	EnergyUpdatedAt time.Time `json:"energyUpdatedAt"`

	StreakCount         int      `json:"streakCount"`
	ActivityDays        []string `json:"activityDays"`
	WeeklyRewardClaimed bool     `json:"weeklyRewardClaimed"`
	ClaimedMilestones   []string `json:"claimedMilestones"`

	BoundUserID     uint   `json:"boundUserId"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsAnonymous     bool   `json:"isAnonymous"`
	Timezone        string `json:"timezone"`

	DailyFallback DailySnapshot `json:"dailyProgressLocalFallback"`

	// PendingXP 已计入 TotalXP 但服务端尚未确认的乐观经验，按 attempt 记录
	PendingXP map[string]int64 `json:"pendingXP,omitempty"`
}

// Level 永远由 TotalXP 推导
func (s State) Level() int {
	return ledger.LevelForXP(s.TotalXP)
}

func (s State) Progress() ledger.Progress {
	return ledger.ProgressWithinLevel(s.TotalXP)
}

// PendingTotal 尚未被服务端确认的乐观经验总和
func (s State) PendingTotal() int64 {
	var sum int64
	for _, xp := range s.PendingXP {
		sum += xp
	}
	return sum
}

// ConfirmedXP 可以按取大规则推送给服务端的部分
// 未确认的会话经验只能通过提交本身进入服务端，否则重试提交会重复计分
func (s State) ConfirmedXP() int64 {
	c := s.TotalXP - s.PendingTotal()
	if c < 0 {
		return 0
	}
	return c
}

// HasActivity 某天是否有记录的活跃
func (s State) HasActivity(day string) bool {
	for _, d := range s.ActivityDays {
		if d == day {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	c := s
	c.ActivityDays = append([]string(nil), s.ActivityDays...)
	c.ClaimedMilestones = append([]string(nil), s.ClaimedMilestones...)
	if s.PendingXP != nil {
		c.PendingXP = make(map[string]int64, len(s.PendingXP))
		for k, v := range s.PendingXP {
			c.PendingXP[k] = v
		}
	}
	return c
}

// initialState 新设备或身份切换后的初始状态：满体力、0 经验
func initialState(maxEnergy int, now time.Time) State {
	return State{
		CurrentEnergy:   maxEnergy,
		MaxEnergy:       maxEnergy,
		EnergyUpdatedAt: now,
		IsAnonymous:     true,
	}
}
