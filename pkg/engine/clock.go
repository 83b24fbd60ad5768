package engine

import "time"

// Timer 可取消的定时回调
type Timer interface {
	Stop() bool
}

// Clock 墙钟与定时器，测试里替换为手动推进的实现
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock 使用真实时间
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
