package repository

import (
	"learnquest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

func (r *ActivityRepository) WithTx(tx *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: tx}
}

// AddDay 记录活跃日，已存在时不做任何事，返回是否新插入
func (r *ActivityRepository) AddDay(userID uint, day string) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ActivityDay{UserID: userID, Day: day})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ActivityRepository) HasDay(userID uint, day string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ActivityDay{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&count).Error
	return count > 0, err
}

// ListSince 返回 fromDay（含）之后的活跃日，升序
func (r *ActivityRepository) ListSince(userID uint, fromDay string) ([]string, error) {
	var days []string
	err := r.DB.Model(&model.ActivityDay{}).
		Where("user_id = ? AND day >= ?", userID, fromDay).
		Order("day ASC").
		Pluck("day", &days).Error
	return days, err
}

func (r *ActivityRepository) DeleteByUser(userID uint) error {
	return r.DB.Where("user_id = ?", userID).Delete(&model.ActivityDay{}).Error
}
