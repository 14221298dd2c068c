package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Archive 表示某个房间已提交历史的一份命名存档（数据库模型）。
type Archive struct {
	ID           string    `gorm:"primaryKey;size:26"`      // ULID
	RoomID       string    `gorm:"index;size:191;not null"` // 存档来源房间
	Name         string    `gorm:"size:191;not null"`       // 存档名称
	CreatedBy    string    `gorm:"size:191"`                // 发起者（参与者 ID 或 "autosave"）
	Data         string    `gorm:"type:longtext;not null"`  // 已提交操作列表的 JSON
	OpCount      int       `gorm:"not null"`                // 操作数量，列表接口直接返回
	Version      uint64    `gorm:"not null"`                // 存档时历史引擎的版本号
	ThumbnailKey string    `gorm:"size:191"`                // 缩略图在 blob 存储中的 key，可为空
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}

// ParseOps 将 Data 字段解析为操作列表
func (a *Archive) ParseOps() ([]Operation, error) {
	if a.Data == "" || a.Data == "null" {
		return []Operation{}, nil
	}
	var ops []Operation
	if err := json.Unmarshal([]byte(a.Data), &ops); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive data: %w", err)
	}
	return ops, nil
}

// SetOps 序列化操作列表并写入 Data 与 OpCount
func (a *Archive) SetOps(ops []Operation) error {
	if ops == nil {
		ops = []Operation{}
	}
	bytes, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal archive data: %w", err)
	}
	a.Data = string(bytes)
	a.OpCount = len(ops)
	return nil
}
