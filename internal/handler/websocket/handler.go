package websocket

import (
	"net/http"

	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	defaultRoom string
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, defaultRoom, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if err := service.ValidateRoomID(defaultRoom); err != nil {
		panic("default room id is invalid: " + defaultRoom)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		hub:         h,
		defaultRoom: defaultRoom,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 格式: /ws（默认房间）或 /ws/room/{roomId}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		roomID = h.defaultRoom
	}
	logCtx := logrus.WithField("room_id", roomID)

	if err := service.ValidateRoomID(roomID); err != nil {
		logCtx.Warn("WS Handler: Invalid room ID format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID format"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误响应
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, roomID)
	logCtx = logCtx.WithField("conn_id", client.ID())

	if !h.hub.Register(client) {
		logCtx.Error("WS Handler: Hub stopped, rejecting client")
		client.CloseConn()
		return
	}

	client.Run()
	logCtx.Info("WS Handler: Client registered, read/write pumps started")
}
