package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"collaborative-canvas/internal/export"
	"collaborative-canvas/internal/protocol"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装了房间查询和导出的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// ListRooms GET /api/rooms
func (h *RoomHandler) ListRooms(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": h.roomService.ListRooms(c.Request.Context())})
}

// GetState GET /api/rooms/:roomId/state，返回与 websocket state 消息相同的结构
func (h *RoomHandler) GetState(c *gin.Context) {
	ops, err := h.roomService.GetState(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, protocol.StatePayload{Ops: ops})
}

// ExportPNG GET /api/rooms/:roomId/export.png?w=&h=
func (h *RoomHandler) ExportPNG(c *gin.Context) {
	roomID := c.Param("roomId")
	width, height, err := exportSize(c)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	ops, err := h.roomService.GetState(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePNG(&buf, ops, width, height); err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "ops": len(ops), "bytes": buf.Len()}).Debug("Room exported as PNG")
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, roomID))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ExportPDF GET /api/rooms/:roomId/export.pdf?w=&h=
func (h *RoomHandler) ExportPDF(c *gin.Context) {
	roomID := c.Param("roomId")
	width, height, err := exportSize(c)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	ops, err := h.roomService.GetState(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, ops, width, height); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, roomID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// exportSize 解析 w/h 查询参数，缺省时使用默认导出尺寸
func exportSize(c *gin.Context) (int, int, error) {
	parse := func(key string) (int, error) {
		v := c.Query(key)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", export.ErrInvalidSize, key, v)
		}
		return n, nil
	}
	w, err := parse("w")
	if err != nil {
		return 0, 0, err
	}
	hgt, err := parse("h")
	if err != nil {
		return 0, 0, err
	}
	return export.ValidateSize(w, hgt)
}
