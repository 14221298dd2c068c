package http

import (
	"context"
	"net/http"
	"strconv"

	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ArchiveEnqueuer 把存档请求交给后台 worker
type ArchiveEnqueuer interface {
	EnqueueArchive(ctx context.Context, roomID, name, createdBy string) (string, error)
}

// ArchiveHandler 封装了房间存档的 HTTP 处理逻辑
type ArchiveHandler struct {
	archiveService *service.ArchiveService
	roomService    *service.RoomService
	enqueuer       ArchiveEnqueuer // 可为 nil，此时同步存档
}

// NewArchiveHandler 创建 ArchiveHandler 实例
func NewArchiveHandler(archiveService *service.ArchiveService, roomService *service.RoomService, enqueuer ArchiveEnqueuer) *ArchiveHandler {
	if archiveService == nil {
		panic("ArchiveService cannot be nil for ArchiveHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for ArchiveHandler")
	}
	return &ArchiveHandler{archiveService: archiveService, roomService: roomService, enqueuer: enqueuer}
}

// CreateArchive POST /api/rooms/:roomId/archives
// 有任务队列时入队并返回 202，否则同步存档返回 201。
func (h *ArchiveHandler) CreateArchive(c *gin.Context) {
	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "CreateArchive"})

	var req dto.CreateArchiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	// 入队前先确认房间存在，避免产生注定失败的任务
	if _, err := h.roomService.GetRoom(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueArchive(c.Request.Context(), roomID, req.Name, req.CreatedBy)
		if err == nil {
			logCtx.WithField("task_id", taskID).Info("Archive task enqueued")
			SuccessResponse(c, http.StatusAccepted, dto.ArchiveAccepted{TaskID: taskID, RoomID: roomID, Status: "queued"})
			return
		}
		logCtx.WithError(err).Warn("Failed to enqueue archive task, archiving inline")
	}

	archive, err := h.archiveService.CreateArchive(c.Request.Context(), roomID, req.Name, req.CreatedBy)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, dto.NewArchiveSummary(*archive))
}

// ListArchives GET /api/rooms/:roomId/archives?limit=
func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	archives, err := h.archiveService.ListArchives(c.Request.Context(), c.Param("roomId"), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	items := make([]dto.ArchiveSummary, 0, len(archives))
	for _, a := range archives {
		items = append(items, dto.NewArchiveSummary(a))
	}
	SuccessResponse(c, http.StatusOK, gin.H{"archives": items})
}

// GetArchive GET /api/archives/:archiveId
func (h *ArchiveHandler) GetArchive(c *gin.Context) {
	archive, ops, err := h.archiveService.GetArchive(c.Request.Context(), c.Param("archiveId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewArchiveDetail(*archive, ops))
}

// GetThumbnail GET /api/archives/:archiveId/thumbnail.png
func (h *ArchiveHandler) GetThumbnail(c *gin.Context) {
	data, err := h.archiveService.GetThumbnail(c.Request.Context(), c.Param("archiveId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/png", data)
}
