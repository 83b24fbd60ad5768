package model

import "time"

// BaseModel 成长账本的行只追加不修改历史，管理员重置时直接硬删除，不保留软删除字段
// swagger:model
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
