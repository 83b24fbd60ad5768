package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// User 用户及其成长数据，服务端以此行为最终权威
// 等级不落库，永远由 XP 推导
// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string   `gorm:"size:100;not null" json:"-"`
	Role     UserRole `gorm:"size:20;default:'student'" json:"role"`
	Timezone string   `gorm:"size:64" json:"timezone"`
	Disabled bool     `gorm:"default:false" json:"disabled"`

	XP              int64     `gorm:"default:0;index" json:"totalXP"`
	Energy          int       `gorm:"default:0" json:"currentEnergy"`
	MaxEnergy       int       `gorm:"default:0" json:"maxEnergy"`
	EnergyUpdatedAt time.Time `json:"lastRegenTimestamp"`

	StreakCount         int    `gorm:"default:0" json:"streakCount"`
	LastActiveDay       string `gorm:"size:10" json:"lastActiveDay"` // YYYY-MM-DD，用户时区
	WeeklyRewardClaimed bool   `gorm:"default:false" json:"weeklyRewardClaimed"`

	LastLogin *time.Time `json:"lastLogin"`
	LastSeen  *time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
