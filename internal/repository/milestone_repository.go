package repository

import (
	"learnquest_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MilestoneRepository struct {
	DB *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{DB: db}
}

func (r *MilestoneRepository) WithTx(tx *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{DB: tx}
}

// Claim 写入领取记录，返回是否首次领取
func (r *MilestoneRepository) Claim(claim *model.MilestoneClaim) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(claim)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MilestoneRepository) ClaimedCodes(userID uint) (map[string]bool, error) {
	var codes []string
	err := r.DB.Model(&model.MilestoneClaim{}).Where("user_id = ?", userID).Pluck("code", &codes).Error
	if err != nil {
		return nil, err
	}
	claimed := make(map[string]bool, len(codes))
	for _, c := range codes {
		claimed[c] = true
	}
	return claimed, nil
}
