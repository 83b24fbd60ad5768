package ledger

// TaskType 每日任务类型
type TaskType string

const (
	TaskLesson TaskType = "lesson"
	TaskTest   TaskType = "test"
)

func (t TaskType) Valid() bool {
	return t == TaskLesson || t == TaskTest
}

const (
	XPPerCorrectAnswer int64 = 10
	LessonXP           int64 = 15

	DailyLessonRewardXP int64 = 20
	DailyTestRewardXP   int64 = 30

	WeeklyStreakRewardXP int64 = 100
	StreakCycleDays            = 7

	DefaultDailyLessonTarget = 2
	DefaultDailyTestTarget   = 3
)

// TestXP 测试结算经验：每答对一题得 XPPerCorrectAnswer
func TestXP(correct int) int64 {
	if correct <= 0 {
		return 0
	}
	return int64(correct) * XPPerCorrectAnswer
}

// DailyRewardXP 每日任务领取奖励
func DailyRewardXP(task TaskType) int64 {
	switch task {
	case TaskLesson:
		return DailyLessonRewardXP
	case TaskTest:
		return DailyTestRewardXP
	}
	return 0
}

// MilestoneDef 里程碑定义，进度为累计完成的课程数
type MilestoneDef struct {
	Code        string `json:"code"`
	TargetCount int    `json:"targetCount"`
	XPReward    int64  `json:"xpReward"`
	TitleReward string `json:"titleReward,omitempty"`
}

var Milestones = []MilestoneDef{
	{Code: "lessons_5", TargetCount: 5, XPReward: 50},
	{Code: "lessons_25", TargetCount: 25, XPReward: 200, TitleReward: "Seeker"},
	{Code: "lessons_50", TargetCount: 50, XPReward: 350},
	{Code: "lessons_100", TargetCount: 100, XPReward: 500, TitleReward: "Scholar"},
}

// FindMilestone 按编码查找里程碑
func FindMilestone(code string) (MilestoneDef, bool) {
	for _, m := range Milestones {
		if m.Code == code {
			return m, true
		}
	}
	return MilestoneDef{}, false
}

// StreakSlot 返回连续天数在7天周期内的位置(1..7)
// todayActive 为 false 时按“今天进行中”计算，即 streak+1
func StreakSlot(streak int, todayActive bool) int {
	if streak < 0 {
		streak = 0
	}
	n := streak
	if !todayActive {
		n = streak + 1
	}
	if n <= 0 {
		return 1
	}
	return ((n - 1) % StreakCycleDays) + 1
}

// TaskState 每日任务状态：未完成 -> 已完成 -> 已领取
type TaskState string

const (
	TaskIncomplete TaskState = "incomplete"
	TaskCompleted  TaskState = "completed"
	TaskClaimed    TaskState = "claimed"
)

// DailyTaskState 完成状态由计数推导，不单独存储
func DailyTaskState(count, target int, claimed bool) TaskState {
	if claimed {
		return TaskClaimed
	}
	if target > 0 && count >= target {
		return TaskCompleted
	}
	return TaskIncomplete
}
