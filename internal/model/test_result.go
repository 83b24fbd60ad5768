package model

import "time"

// TestResult 一次测试提交记录，(user_id, attempt_id) 唯一，用于幂等
type TestResult struct {
	BaseModel
	UserID          uint      `gorm:"uniqueIndex:idx_user_attempt;not null" json:"userId"`
	AttemptID       string    `gorm:"size:64;uniqueIndex:idx_user_attempt;not null" json:"attemptId"`
	TestID          string    `gorm:"size:64;index" json:"testId"`
	CorrectAnswers  int       `json:"correctAnswers"`
	TotalQuestions  int       `json:"totalQuestions"`
	Percent         float64   `json:"percent"`
	DurationSeconds int       `json:"durationSeconds"`
	ClientTimestamp string    `gorm:"size:40" json:"clientTimestamp"`
	PayloadHash     string    `gorm:"size:64" json:"-"`
	XPAwarded       int64     `json:"xpAwarded"`
	XPAfter         int64     `json:"xpAfter"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

func (TestResult) TableName() string {
	return "test_results"
}
