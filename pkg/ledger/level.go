package ledger

// 等级曲线：T(n) = 50 * n * (n-1)
// 即升到 n+1 级需要在 n 级内累计 100*n XP
const levelStep int64 = 50

// MaxXP 累计经验上限，对应等级约 14 万级
// 超过上限的值一律截断，保证 Threshold 的计算不会溢出 int64
const MaxXP int64 = 1_000_000_000_000

// ClampXP 把经验限制在 [0, MaxXP]
func ClampXP(xp int64) int64 {
	if xp < 0 {
		return 0
	}
	if xp > MaxXP {
		return MaxXP
	}
	return xp
}

// AddXP 饱和加法，结果不超过 MaxXP
func AddXP(total, delta int64) int64 {
	total = ClampXP(total)
	if delta <= 0 {
		return total
	}
	if delta >= MaxXP-total {
		return MaxXP
	}
	return total + delta
}

// Progress 某个累计XP在当前等级内的进度
type Progress struct {
	Level              int     `json:"level"`
	XPIntoLevel        int64   `json:"xpIntoLevel"`
	XPRequiredForLevel int64   `json:"xpRequiredForLevel"`
	Percent            float64 `json:"percent"`
}

// Threshold 返回达到第 n 级所需的累计XP，n<=1 时为 0
func Threshold(n int) int64 {
	if n <= 1 {
		return 0
	}
	k := int64(n)
	return levelStep * k * (k - 1)
}

// LevelForXP 根据累计XP计算等级，最低为1级
// 客户端与服务端都必须使用这个函数，保证排行榜上的等级一致
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// 截断后上界不超过 2*LevelForXP(MaxXP)，Threshold 不会溢出
	xp = ClampXP(xp)
	// 倍增找上界后二分
	lo, hi := 1, 2
	for Threshold(hi) <= xp {
		lo = hi
		hi *= 2
	}
	for lo < hi-1 {
		mid := (lo + hi) / 2
		if Threshold(mid) <= xp {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// ProgressWithinLevel 计算等级内进度，百分比限制在 [0,100]
func ProgressWithinLevel(xp int64) Progress {
	xp = ClampXP(xp)
	level := LevelForXP(xp)
	start := Threshold(level)
	required := Threshold(level+1) - start
	into := xp - start

	percent := 0.0
	if required > 0 {
		percent = 100 * float64(into) / float64(required)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return Progress{
		Level:              level,
		XPIntoLevel:        into,
		XPRequiredForLevel: required,
		Percent:            percent,
	}
}
