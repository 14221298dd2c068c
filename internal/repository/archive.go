package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// ArchiveRepository 定义了房间存档在数据库中的存储和查询。
type ArchiveRepository interface {
	// Save 插入一条新存档。ID 冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, archive *domain.Archive) error

	// FindByID 根据存档 ID 查找，不存在时返回 ErrArchiveNotFound。
	FindByID(ctx context.Context, id string) (*domain.Archive, error)

	// ListByRoom 按创建时间倒序列出房间的存档，不包含 Data 字段。
	ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.Archive, error)
}
