package model

// MilestoneClaim 里程碑领取记录，领取后永不回退
type MilestoneClaim struct {
	BaseModel
	UserID    uint   `gorm:"uniqueIndex:idx_user_milestone;not null" json:"userId"`
	Code      string `gorm:"size:32;uniqueIndex:idx_user_milestone;not null" json:"code"`
	XPAwarded int64  `json:"xpAwarded"`
}

func (MilestoneClaim) TableName() string {
	return "milestone_claims"
}
