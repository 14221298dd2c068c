package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
)

// Archiver 是 ArchiveService 中 worker 需要的部分
type Archiver interface {
	CreateArchive(ctx context.Context, roomID, name, createdBy string) (*domain.Archive, error)
	AutosaveActive(ctx context.Context) (int, error)
}

// taskFields 提取任务的日志字段。直接构造的任务没有 ResultWriter。
func taskFields(ctx context.Context, t *asynq.Task) logrus.Fields {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     retry,
		"max_retry": maxRetry,
	}
}

// ArchiveRoomHandler 处理存档任务
type ArchiveRoomHandler struct {
	archiver Archiver
}

// NewArchiveRoomHandler 创建 Handler 实例
func NewArchiveRoomHandler(archiver Archiver) *ArchiveRoomHandler {
	if archiver == nil {
		panic("Archiver cannot be nil for ArchiveRoomHandler")
	}
	return &ArchiveRoomHandler{archiver: archiver}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ArchiveRoomHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithFields(taskFields(ctx, t))
	logCtx.Info("Processing archive task...")

	payload, err := tasks.ParseArchiveRoomPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	archive, err := h.archiver.CreateArchive(ctx, payload.RoomID, payload.Name, payload.CreatedBy)
	if err != nil {
		// 房间不存在或 ID 非法时重试没有意义
		if errors.Is(err, service.ErrRoomNotFound) || errors.Is(err, service.ErrInvalidRoomID) {
			logCtx.WithError(err).Warn("Archive task targets an unknown room")
			return fmt.Errorf("archive room %s: %v: %w", payload.RoomID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("archive room %s: %w", payload.RoomID, err)
	}

	logCtx.WithField("archive_id", archive.ID).Info("Archive task processed successfully")
	return nil
}
