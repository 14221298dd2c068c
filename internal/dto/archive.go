package dto

import (
	"time"

	"collaborative-canvas/internal/domain"
)

// CreateArchiveRequest 是 POST /api/rooms/:roomId/archives 的请求体
type CreateArchiveRequest struct {
	Name      string `json:"name" binding:"max=100"`
	CreatedBy string `json:"createdBy" binding:"max=64"`
}

// ArchiveSummary 是存档列表中的单项，不包含操作数据
type ArchiveSummary struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	OpCount      int       `json:"opCount"`
	Version      uint64    `json:"version"`
	HasThumbnail bool      `json:"hasThumbnail"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ArchiveDetail 在概要基础上附带完整的操作列表
type ArchiveDetail struct {
	ArchiveSummary
	Ops []domain.Operation `json:"ops"`
}

// ArchiveAccepted 是异步存档入队后的响应
type ArchiveAccepted struct {
	TaskID string `json:"taskId"`
	RoomID string `json:"roomId"`
	Status string `json:"status"`
}

// NewArchiveSummary 从数据库模型构造响应
func NewArchiveSummary(a domain.Archive) ArchiveSummary {
	return ArchiveSummary{
		ID:           a.ID,
		RoomID:       a.RoomID,
		Name:         a.Name,
		CreatedBy:    a.CreatedBy,
		OpCount:      a.OpCount,
		Version:      a.Version,
		HasThumbnail: a.ThumbnailKey != "",
		CreatedAt:    a.CreatedAt,
	}
}

// NewArchiveDetail 构造带操作列表的响应
func NewArchiveDetail(a domain.Archive, ops []domain.Operation) ArchiveDetail {
	if ops == nil {
		ops = []domain.Operation{}
	}
	return ArchiveDetail{ArchiveSummary: NewArchiveSummary(a), Ops: ops}
}
