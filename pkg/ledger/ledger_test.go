package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	assert.Equal(t, int64(0), Threshold(0))
	assert.Equal(t, int64(0), Threshold(1))
	assert.Equal(t, int64(100), Threshold(2))
	assert.Equal(t, int64(300), Threshold(3))
	assert.Equal(t, int64(600), Threshold(4))

	for n := 1; n < 200; n++ {
		require.Less(t, Threshold(n), Threshold(n+1), "threshold must strictly increase at level %d", n)
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{-5, 1},
		{Threshold(2) - 1, 1},
		{Threshold(2), 2},
		{Threshold(3) - 1, 2},
		{Threshold(3), 3},
		{Threshold(40) + 7, 40},
		{MaxXP, 141421},
		{MaxXP + 1, 141421},
		{math.MaxInt64 - 5, 141421},
		{math.MaxInt64, 141421},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestXPSaturatesAtCap(t *testing.T) {
	tests := []struct {
		total, delta, want int64
	}{
		{0, 10, 10},
		{100, -5, 100},
		{-3, 10, 10},
		{MaxXP - 10, 5, MaxXP - 5},
		{MaxXP - 10, 10, MaxXP},
		{MaxXP - 5, math.MaxInt64, MaxXP},
		{math.MaxInt64, 1, MaxXP},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AddXP(tt.total, tt.delta), "total=%d delta=%d", tt.total, tt.delta)
	}

	require.Less(t, Threshold(LevelForXP(MaxXP)+1), int64(math.MaxInt64/2))
	p := ProgressWithinLevel(math.MaxInt64)
	assert.Equal(t, LevelForXP(MaxXP), p.Level)
	assert.LessOrEqual(t, p.Percent, 100.0)
}

func TestLevelIsMonotonic(t *testing.T) {
	prev := LevelForXP(0)
	var xp int64
	awards := []int64{0, 1, 9, 10, 30, 99, 1, 250, 0, 1000, 3, 5000}
	for i := 0; i < 50; i++ {
		xp += awards[i%len(awards)]
		lvl := LevelForXP(xp)
		require.GreaterOrEqual(t, lvl, prev)
		prev = lvl
	}
}

func TestProgressWithinLevel(t *testing.T) {
	p := ProgressWithinLevel(150)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(50), p.XPIntoLevel)
	assert.Equal(t, int64(200), p.XPRequiredForLevel)
	assert.InDelta(t, 25.0, p.Percent, 0.0001)

	p = ProgressWithinLevel(0)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0.0, p.Percent)

	for _, xp := range []int64{-10, 0, 99, 100, 299, 12345} {
		p := ProgressWithinLevel(xp)
		assert.GreaterOrEqual(t, p.Percent, 0.0)
		assert.Less(t, p.Percent, 100.0+1e-9)
	}
}

func TestRegenerateEnergy(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	interval := 30 * time.Minute

	v, last := RegenerateEnergy(2, 6, base, base.Add(20*time.Minute), interval)
	assert.Equal(t, 2, v)
	assert.Equal(t, base, last)

	v, last = RegenerateEnergy(2, 6, base, base.Add(70*time.Minute), interval)
	assert.Equal(t, 4, v)
	assert.Equal(t, base.Add(60*time.Minute), last)

	now := base.Add(10 * time.Hour)
	v, last = RegenerateEnergy(2, 6, base, now, interval)
	assert.Equal(t, 6, v)
	assert.Equal(t, now, last)

	v, _ = RegenerateEnergy(9, 6, base, now, interval)
	assert.Equal(t, 6, v)
}

func TestStreakSlot(t *testing.T) {
	assert.Equal(t, 7, StreakSlot(6, false))
	assert.Equal(t, 6, StreakSlot(6, true))
	assert.Equal(t, 7, StreakSlot(7, true))
	assert.Equal(t, 1, StreakSlot(7, false))
	assert.Equal(t, 1, StreakSlot(0, false))
	assert.Equal(t, 1, StreakSlot(0, true))
	assert.Equal(t, 1, StreakSlot(8, true))
}

func TestLocalDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01", LocalDay(now, ""))
	assert.Equal(t, "2026-03-01", LocalDay(now, "Not/AZone"))
	assert.Equal(t, "2026-03-02", LocalDay(now, "Asia/Riyadh"))
	assert.Equal(t, "2026-03-02", AddDays("2026-03-01", 1))
	assert.Equal(t, "2026-02-28", AddDays("2026-03-01", -1))
}

func TestDailyTaskState(t *testing.T) {
	assert.Equal(t, TaskIncomplete, DailyTaskState(1, 2, false))
	assert.Equal(t, TaskCompleted, DailyTaskState(2, 2, false))
	assert.Equal(t, TaskCompleted, DailyTaskState(5, 2, false))
	assert.Equal(t, TaskClaimed, DailyTaskState(2, 2, true))
	assert.Equal(t, TaskIncomplete, DailyTaskState(0, 0, false))
}

func TestRewardTables(t *testing.T) {
	assert.Equal(t, int64(30), TestXP(3))
	assert.Equal(t, int64(0), TestXP(-1))
	assert.Equal(t, DailyLessonRewardXP, DailyRewardXP(TaskLesson))
	assert.Equal(t, DailyTestRewardXP, DailyRewardXP(TaskTest))
	assert.Equal(t, int64(0), DailyRewardXP("quiz"))

	m, ok := FindMilestone("lessons_25")
	assert.True(t, ok)
	assert.Equal(t, 25, m.TargetCount)
	_, ok = FindMilestone("nope")
	assert.False(t, ok)
}
