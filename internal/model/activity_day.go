package model

// ActivityDay 用户有有效学习行为的日历日，只增不删（管理员重置除外）
type ActivityDay struct {
	BaseModel
	UserID uint   `gorm:"uniqueIndex:idx_user_activity_day;not null" json:"userId"`
	Day    string `gorm:"size:10;uniqueIndex:idx_user_activity_day;not null" json:"day"`
}

func (ActivityDay) TableName() string {
	return "activity_days"
}
