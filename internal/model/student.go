package model

import (
	"time"
)

// StudentModel 学生档案模型
type StudentModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name" gorm:"not null" binding:"required"`
	Email    string `json:"email" gorm:"uniqueIndex"`
	School   string `json:"school"`
	Verified bool   `json:"verified" gorm:"default:false"` // 是否通过学籍认证
}

// TableName 自定义表名
func (StudentModel) TableName() string {
	return "student"
}
