package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const autosaveTimeout = 90 * time.Second

// AutosaveCheckHandler 处理周期性的自动存档检查任务
type AutosaveCheckHandler struct {
	archiver Archiver
}

// NewAutosaveCheckHandler 创建 Handler 实例
func NewAutosaveCheckHandler(archiver Archiver) *AutosaveCheckHandler {
	if archiver == nil {
		panic("Archiver cannot be nil for AutosaveCheckHandler")
	}
	return &AutosaveCheckHandler{archiver: archiver}
}

// ProcessTask 实现 asynq.Handler 接口。
// 部分房间失败只记录日志，周期任务本身视为完成，下个周期会再次尝试。
func (h *AutosaveCheckHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithFields(taskFields(ctx, t))
	logCtx.Info("Processing periodic autosave check task...")

	checkCtx, cancel := context.WithTimeout(ctx, autosaveTimeout)
	defer cancel()

	saved, err := h.archiver.AutosaveActive(checkCtx)
	if err != nil {
		logCtx.WithError(err).WithField("archived_rooms", saved).Error("Autosave finished with errors")
		return nil
	}
	if saved == 0 {
		logCtx.Debug("Autosave check complete, no room changed")
		return nil
	}
	logCtx.WithField("archived_rooms", saved).Info("Autosave check complete")
	return nil
}
