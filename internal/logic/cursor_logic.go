package logic

import (
	"errors"
	"fmt"

	"github.com/kevrollin/fhs/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorLogic 轮询任务游标业务逻辑
type CursorLogic struct {
	db *gorm.DB
}

// NewCursorLogic 创建轮询游标业务逻辑
func NewCursorLogic(db *gorm.DB) *CursorLogic {
	return &CursorLogic{db: db}
}

// Get 获取游标值，不存在时返回空字符串（从账本最早记录开始扫描）
func (c *CursorLogic) Get(name string) (string, error) {
	var cursor model.TaskCursorModel
	if err := c.db.Where("name = ?", name).First(&cursor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("获取任务游标失败: %w", err)
	}
	return cursor.Cursor, nil
}

// Put 持久化游标值（upsert）
// 调用方保证整批记录处理完成后才推进，崩溃后从上一次持久化的位置重扫
func (c *CursorLogic) Put(name, value string) error {
	cursor := model.TaskCursorModel{Name: name, Cursor: value}
	if err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
	}).Create(&cursor).Error; err != nil {
		return fmt.Errorf("持久化任务游标失败: %w", err)
	}
	return nil
}
