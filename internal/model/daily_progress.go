package model

// DailyProgress 用户某一天的任务计数和领取状态
// 新的一天懒创建新行，历史行不做修改
type DailyProgress struct {
	BaseModel
	UserID        uint   `gorm:"uniqueIndex:idx_user_progress_date;not null" json:"userId"`
	Date          string `gorm:"size:10;uniqueIndex:idx_user_progress_date;not null" json:"date"`
	LessonsToday  int    `gorm:"default:0" json:"lessonsToday"`
	TestsToday    int    `gorm:"default:0" json:"testsToday"`
	LessonClaimed bool   `gorm:"default:false" json:"lessonClaimed"`
	TestClaimed   bool   `gorm:"default:false" json:"testClaimed"`
}

func (DailyProgress) TableName() string {
	return "daily_progress"
}
