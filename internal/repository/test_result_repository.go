package repository

import (
	"errors"
	"learnquest_backend/internal/model"

	"gorm.io/gorm"
)

type TestResultRepository struct {
	DB *gorm.DB
}

func NewTestResultRepository(db *gorm.DB) *TestResultRepository {
	return &TestResultRepository{DB: db}
}

func (r *TestResultRepository) WithTx(tx *gorm.DB) *TestResultRepository {
	return &TestResultRepository{DB: tx}
}

// FindByAttempt 未找到时返回 (nil, nil)
func (r *TestResultRepository) FindByAttempt(userID uint, attemptID string) (*model.TestResult, error) {
	var result model.TestResult
	err := r.DB.Where("user_id = ? AND attempt_id = ?", userID, attemptID).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *TestResultRepository) Create(result *model.TestResult) error {
	return r.DB.Create(result).Error
}

func (r *TestResultRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.TestResult{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
