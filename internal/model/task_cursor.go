package model

import (
	"time"
)

// TaskCursorModel 轮询任务游标模型
// 游标是账本返回的不透明分页标记，整批处理完成后才推进，只进不退
type TaskCursorModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string `json:"name" gorm:"uniqueIndex;not null"` // 任务名:账户地址 组合键
	Cursor string `json:"cursor" gorm:"not null"`
}

// TableName 自定义表名
func (TaskCursorModel) TableName() string {
	return "task_cursor"
}
