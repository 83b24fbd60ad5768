package repository

import (
	"learnquest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LessonRepository struct {
	DB *gorm.DB
}

func NewLessonRepository(db *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: db}
}

func (r *LessonRepository) WithTx(tx *gorm.DB) *LessonRepository {
	return &LessonRepository{DB: tx}
}

// MarkCompleted 返回是否首次完成
func (r *LessonRepository) MarkCompleted(userID uint, lessonID, day string) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.LessonCompletion{UserID: userID, LessonID: lessonID, Day: day})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *LessonRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LessonCompletion{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
