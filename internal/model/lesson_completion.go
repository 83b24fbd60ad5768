package model

// LessonCompletion 课程完成记录，重复完成不重复发放经验
type LessonCompletion struct {
	BaseModel
	UserID   uint   `gorm:"uniqueIndex:idx_user_lesson;not null" json:"userId"`
	LessonID string `gorm:"size:64;uniqueIndex:idx_user_lesson;not null" json:"lessonId"`
	Day      string `gorm:"size:10" json:"day"`
}

func (LessonCompletion) TableName() string {
	return "lesson_completions"
}
