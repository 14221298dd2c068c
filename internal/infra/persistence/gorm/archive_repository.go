package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// 列表查询不加载体积较大的 data 列
var archiveSummaryColumns = []string{"id", "room_id", "name", "created_by", "op_count", "version", "thumbnail_key", "created_at"}

// GormArchiveRepository 是 ArchiveRepository 接口的 GORM 实现
type GormArchiveRepository struct {
	db *gorm.DB
}

// NewGormArchiveRepository 创建 GormArchiveRepository 实例
func NewGormArchiveRepository(db *gorm.DB) *GormArchiveRepository {
	if db == nil {
		panic("database connection cannot be nil for GormArchiveRepository")
	}
	return &GormArchiveRepository{db: db}
}

// Save 插入一条新存档
func (r *GormArchiveRepository) Save(ctx context.Context, archive *domain.Archive) error {
	err := r.db.WithContext(ctx).Create(archive).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save archive (id: %s, room: %s): %w", archive.ID, archive.RoomID, err)
	}
	return nil
}

// FindByID 根据存档 ID 查找
func (r *GormArchiveRepository) FindByID(ctx context.Context, id string) (*domain.Archive, error) {
	var archive domain.Archive
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&archive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrArchiveNotFound
		}
		return nil, fmt.Errorf("gorm: find archive by id %s: %w", id, err)
	}
	return &archive, nil
}

// ListByRoom 按创建时间倒序列出房间的存档
func (r *GormArchiveRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]domain.Archive, error) {
	var archives []domain.Archive
	err := r.db.WithContext(ctx).
		Select(archiveSummaryColumns).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&archives).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list archives for room %s: %w", roomID, err)
	}
	return archives, nil
}

// isDuplicateEntry 识别 MySQL 1062 以及 GORM 翻译后的唯一约束错误
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
