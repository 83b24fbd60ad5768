package ledger

import (
	"strings"
	"time"
	_ "time/tzdata"
)

const DayLayout = "2006-01-02"

// LoadTimezone 解析用户时区，为空或非法时退回 UTC
func LoadTimezone(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDay 返回用户时区下的日历日 YYYY-MM-DD
func LocalDay(now time.Time, timezone string) string {
	return now.In(LoadTimezone(timezone)).Format(DayLayout)
}

// AddDays 对 YYYY-MM-DD 做日期加减，解析失败返回原值
func AddDays(day string, n int) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, n).Format(DayLayout)
}
