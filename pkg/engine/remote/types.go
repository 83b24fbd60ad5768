package remote

import (
	"context"
	"learnquest_backend/pkg/ledger"
	"time"
)

// 领取结果状态，与服务端一致
const (
	ClaimOK             = "ok"
	ClaimAlreadyClaimed = "alreadyClaimed"
)

type ClaimedFlags struct {
	LessonClaimed bool     `json:"lessonClaimed"`
	TestClaimed   bool     `json:"testClaimed"`
	WeeklyReward  bool     `json:"weeklyReward"`
	Milestones    []string `json:"milestones"`
}

type Profile struct {
	UserID             uint         `json:"userId"`
	Name               string       `json:"name"`
	TotalXP            int64        `json:"totalXP"`
	CurrentLevel       int          `json:"currentLevel"`
	CurrentEnergy      int          `json:"currentEnergy"`
	MaxEnergy          int          `json:"maxEnergy"`
	LastRegenTimestamp time.Time    `json:"lastRegenTimestamp"`
	StreakCount        int          `json:"streakCount"`
	WeeklyActivitySet  []string     `json:"weeklyActivitySet"`
	ClaimedFlags       ClaimedFlags `json:"claimedFlags"`
	Timezone           string       `json:"timezone"`
	Today              string       `json:"today"`
}

// StatsPatch nil 字段不修改
type StatsPatch struct {
	TotalXP     *int64  `json:"totalXP,omitempty"`
	EnergyDelta *int    `json:"energyDelta,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

type TestSubmission struct {
	AttemptID       string  `json:"attemptId"`
	TestID          string  `json:"testId"`
	CorrectAnswers  int     `json:"correctAnswers"`
	TotalQuestions  int     `json:"totalQuestions"`
	Percent         float64 `json:"percent"`
	DurationSeconds int     `json:"durationSeconds"`
	ClientTimestamp string  `json:"clientTimestamp"`
}

type SubmissionResult struct {
	AttemptID     string `json:"attemptId"`
	XPAwarded     int64  `json:"xpAwarded"`
	NewXP         int64  `json:"newXP"`
	NewLevel      int    `json:"newLevel"`
	PreviousLevel int    `json:"previousLevel"`
	StreakCount   int    `json:"streakCount"`
	Replayed      bool   `json:"replayed"`
}

type LessonResult struct {
	LessonID         string `json:"lessonId"`
	AlreadyCompleted bool   `json:"alreadyCompleted"`
	XPAwarded        int64  `json:"xpAwarded"`
	NewXP            int64  `json:"newXP"`
	NewLevel         int    `json:"newLevel"`
	StreakCount      int    `json:"streakCount"`
}

type DailyProgress struct {
	Date          string           `json:"date"`
	LessonsToday  int              `json:"lessonsToday"`
	TestsToday    int              `json:"testsToday"`
	LessonTarget  int              `json:"lessonTarget"`
	TestTarget    int              `json:"testTarget"`
	LessonClaimed bool             `json:"lessonClaimed"`
	TestClaimed   bool             `json:"testClaimed"`
	LessonState   ledger.TaskState `json:"lessonState"`
	TestState     ledger.TaskState `json:"testState"`
}

type ClaimResult struct {
	Status    string `json:"status"`
	XPAwarded int64  `json:"xpAwarded"`
	NewXP     int64  `json:"newXP"`
	NewLevel  int    `json:"newLevel"`
}

type Energy struct {
	CurrentEnergy        int        `json:"currentEnergy"`
	MaxEnergy            int        `json:"maxEnergy"`
	LastRegenTimestamp   time.Time  `json:"lastRegenTimestamp"`
	NextRegenAt          *time.Time `json:"nextRegenAt,omitempty"`
	RegenIntervalSeconds int64      `json:"regenIntervalSeconds"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"userId"`
	DisplayName string `json:"displayName"`
	TotalXP     int64  `json:"totalXP"`
	Level       int    `json:"level"`
}

type Milestone struct {
	ledger.MilestoneDef
	Progress  int  `json:"progress"`
	IsReached bool `json:"isReached"`
	IsClaimed bool `json:"isClaimed"`
}

// Service 成长系统的远端契约，HTTPClient 是默认实现，测试里用假实现
type Service interface {
	GetProfile(ctx context.Context, userID uint) (*Profile, error)
	UpdateProfileStats(ctx context.Context, userID uint, patch StatsPatch) (*Profile, error)
	SubmitTestResult(ctx context.Context, userID uint, req TestSubmission) (*SubmissionResult, error)
	CompleteLesson(ctx context.Context, userID uint, lessonID string) (*LessonResult, error)
	GetDailyProgress(ctx context.Context, userID uint) (*DailyProgress, error)
	ClaimDailyTask(ctx context.Context, userID uint, task ledger.TaskType) (*ClaimResult, error)
	GetEnergy(ctx context.Context, userID uint) (*Energy, error)
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	ClaimWeeklyReward(ctx context.Context, userID uint) (*ClaimResult, error)
	ListMilestones(ctx context.Context, userID uint) ([]Milestone, error)
	ClaimMilestone(ctx context.Context, userID uint, code string) (*ClaimResult, error)
}

// Connectivity 提交前的联网检查
type Connectivity interface {
	Reachable(ctx context.Context) bool
}

// ConnectivityFunc 便于用函数实现 Connectivity
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Reachable(ctx context.Context) bool { return f(ctx) }
