package ledger

import "time"

const (
	DefaultMaxEnergy     = 6
	DefaultRegenInterval = 30 * time.Minute
)

// RegenerateEnergy 按固定间隔恢复体力，每个间隔恢复1点，上限 max
// 返回恢复后的体力和新的恢复基准时间（保留不足一个间隔的余量）
// 已满时基准时间推进到 now，避免满体力期间累计“隐形”恢复
func RegenerateEnergy(current, max int, lastRegen, now time.Time, interval time.Duration) (int, time.Time) {
	if max < 0 {
		max = 0
	}
	if current > max {
		current = max
	}
	if current < 0 {
		current = 0
	}
	if current >= max || interval <= 0 {
		return current, now
	}
	if lastRegen.IsZero() || now.Before(lastRegen) {
		return current, now
	}

	ticks := int(now.Sub(lastRegen) / interval)
	if ticks <= 0 {
		return current, lastRegen
	}

	next := current + ticks
	if next >= max {
		return max, now
	}
	return next, lastRegen.Add(time.Duration(ticks) * interval)
}

// NextRegenAt 下一点体力恢复的时间，满体力返回零值
func NextRegenAt(current, max int, lastRegen time.Time, interval time.Duration) time.Time {
	if current >= max || interval <= 0 || lastRegen.IsZero() {
		return time.Time{}
	}
	return lastRegen.Add(interval)
}

// ClampEnergy 保证 0 <= v <= max
func ClampEnergy(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
