package repository

import (
	"errors"
	"learnquest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DailyProgressRepository struct {
	DB *gorm.DB
}

func NewDailyProgressRepository(db *gorm.DB) *DailyProgressRepository {
	return &DailyProgressRepository{DB: db}
}

func (r *DailyProgressRepository) WithTx(tx *gorm.DB) *DailyProgressRepository {
	return &DailyProgressRepository{DB: tx}
}

// FindByUserAndDate 未找到时返回 (nil, nil)
func (r *DailyProgressRepository) FindByUserAndDate(userID uint, date string) (*model.DailyProgress, error) {
	var dp model.DailyProgress
	err := r.DB.Where("user_id = ? AND date = ?", userID, date).First(&dp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dp, nil
}

// GetOrCreate 懒创建当天的记录，并发创建时依赖唯一索引兜底
func (r *DailyProgressRepository) GetOrCreate(userID uint, date string) (*model.DailyProgress, error) {
	err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.DailyProgress{UserID: userID, Date: date}).Error
	if err != nil {
		return nil, err
	}

	var dp model.DailyProgress
	if err := forUpdate(r.DB).Where("user_id = ? AND date = ?", userID, date).First(&dp).Error; err != nil {
		return nil, err
	}
	return &dp, nil
}

func (r *DailyProgressRepository) Save(dp *model.DailyProgress) error {
	return r.DB.Save(dp).Error
}

func (r *DailyProgressRepository) DeleteByUser(userID uint) error {
	return r.DB.Where("user_id = ?", userID).Delete(&model.DailyProgress{}).Error
}
