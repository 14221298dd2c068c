package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/export"
	"collaborative-canvas/internal/history"
	"collaborative-canvas/internal/repository"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	AutosaveAuthor     = "autosave"
	maxArchiveNameLen  = 100
	defaultListLimit   = 50
	maxListLimit       = 200
	thumbnailKeyPrefix = "thumbnails/"
)

// ArchiveService 负责房间存档：保存已提交历史的副本、生成缩略图以及定期自动存档。
type ArchiveService struct {
	archiveRepo repository.ArchiveRepository
	blobs       repository.BlobStore
	activity    repository.ActivityRepository
	histories   *history.Registry
	now         func() time.Time
}

// NewArchiveService 创建 ArchiveService 实例。
// activity 为 nil 时使用进程内记录，重启后会对每个有历史的房间重新存档一次。
func NewArchiveService(
	archiveRepo repository.ArchiveRepository,
	blobs repository.BlobStore,
	activity repository.ActivityRepository,
	histories *history.Registry,
) *ArchiveService {
	if archiveRepo == nil {
		panic("ArchiveRepository cannot be nil for ArchiveService")
	}
	if blobs == nil {
		panic("BlobStore cannot be nil for ArchiveService")
	}
	if histories == nil {
		panic("history registry cannot be nil for ArchiveService")
	}
	if activity == nil {
		activity = newLocalActivity()
	}
	return &ArchiveService{
		archiveRepo: archiveRepo,
		blobs:       blobs,
		activity:    activity,
		histories:   histories,
		now:         time.Now,
	}
}

// CreateArchive 保存房间当前已提交历史的副本。
// 缩略图生成或上传失败不会阻止存档本身。
func (s *ArchiveService) CreateArchive(ctx context.Context, roomID, name, createdBy string) (*domain.Archive, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "CreateArchive"})
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	engine, ok := s.histories.Lookup(roomID)
	if !ok {
		logCtx.Warn("Archive requested for unknown room")
		return nil, ErrRoomNotFound
	}

	version := engine.Version()
	ops := engine.Snapshot()

	archive := &domain.Archive{
		ID:        ulid.Make().String(),
		RoomID:    roomID,
		Name:      s.archiveName(name),
		CreatedBy: strings.TrimSpace(createdBy),
		Version:   version,
	}
	if err := archive.SetOps(ops); err != nil {
		logCtx.WithError(err).Error("Failed to serialize operations for archive")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("archive_id", archive.ID)

	if thumb, err := export.Thumbnail(ops, export.DefaultWidth, export.DefaultHeight); err != nil {
		logCtx.WithError(err).Warn("Failed to render archive thumbnail")
	} else {
		key := thumbnailKeyPrefix + archive.ID + ".png"
		if err := s.blobs.Put(ctx, key, thumb, "image/png"); err != nil {
			logCtx.WithError(err).Warn("Failed to store archive thumbnail")
		} else {
			archive.ThumbnailKey = key
		}
	}

	if err := s.archiveRepo.Save(ctx, archive); err != nil {
		logCtx.WithError(err).Error("Failed to save archive")
		return nil, ErrInternalServer
	}
	logCtx.WithFields(logrus.Fields{"ops": archive.OpCount, "version": version}).Info("Room archived")
	return archive, nil
}

// ListArchives 列出房间的存档（不含操作数据），limit 非法时使用默认值。
func (s *ArchiveService) ListArchives(ctx context.Context, roomID string, limit int) ([]domain.Archive, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	archives, err := s.archiveRepo.ListByRoom(ctx, roomID, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list archives")
		return nil, ErrInternalServer
	}
	return archives, nil
}

// GetArchive 返回存档及其解析后的操作列表。
func (s *ArchiveService) GetArchive(ctx context.Context, archiveID string) (*domain.Archive, []domain.Operation, error) {
	logCtx := logrus.WithFields(logrus.Fields{"archive_id": archiveID, "operation": "GetArchive"})
	archive, err := s.archiveRepo.FindByID(ctx, archiveID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logCtx.WithError(err).Error("Failed to load archive")
		}
		return nil, nil, mapRepoError(err, ErrArchiveNotFound)
	}
	ops, err := archive.ParseOps()
	if err != nil {
		logCtx.WithError(err).Error("Stored archive data is corrupted")
		return nil, nil, ErrInternalServer
	}
	return archive, ops, nil
}

// GetThumbnail 读取存档缩略图 PNG。
func (s *ArchiveService) GetThumbnail(ctx context.Context, archiveID string) ([]byte, error) {
	archive, err := s.archiveRepo.FindByID(ctx, archiveID)
	if err != nil {
		return nil, mapRepoError(err, ErrArchiveNotFound)
	}
	if archive.ThumbnailKey == "" {
		return nil, ErrThumbnailNotFound
	}
	data, err := s.blobs.Get(ctx, archive.ThumbnailKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("archive_id", archiveID).Error("Failed to read thumbnail")
		}
		return nil, mapRepoError(err, ErrThumbnailNotFound)
	}
	return data, nil
}

// AutosaveActive 为历史版本自上次自动存档以来有变化的房间创建存档，返回新建的存档数。
// 单个房间失败只记录日志，不影响其他房间。
func (s *ArchiveService) AutosaveActive(ctx context.Context) (int, error) {
	saved := 0
	var errs []error
	for _, roomID := range s.histories.RoomIDs() {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "AutosaveActive"})

		engine, ok := s.histories.Lookup(roomID)
		if !ok || engine.Version() == 0 {
			continue
		}
		last, err := s.activity.GetArchivedVersion(ctx, roomID)
		if err != nil {
			logCtx.WithError(err).Warn("Failed to read archived version, archiving anyway")
		} else if last >= engine.Version() {
			logCtx.Debug("Room unchanged since last autosave")
			continue
		}

		archive, err := s.CreateArchive(ctx, roomID, "", AutosaveAuthor)
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
			continue
		}
		saved++
		if err := s.activity.SetArchivedVersion(ctx, roomID, archive.Version); err != nil {
			logCtx.WithError(err).Warn("Failed to record archived version")
		}
	}
	return saved, errors.Join(errs...)
}

// localActivity 是没有 Redis 时的进程内存档进度
type localActivity struct {
	mu       sync.Mutex
	versions map[string]uint64
}

func newLocalActivity() *localActivity {
	return &localActivity{versions: make(map[string]uint64)}
}

func (l *localActivity) GetArchivedVersion(ctx context.Context, roomID string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.versions[roomID], nil
}

func (l *localActivity) SetArchivedVersion(ctx context.Context, roomID string, version uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.versions[roomID] = version
	return nil
}

func (s *ArchiveService) archiveName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Archive " + s.now().UTC().Format("2006-01-02 15:04:05")
	}
	for utf8.RuneCountInString(name) > maxArchiveNameLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
