package service

import (
	"context"
	"regexp"
	"sort"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/history"
	"collaborative-canvas/internal/presence"

	"github.com/sirupsen/logrus"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateRoomID 检查房间 ID 是否只包含字母、数字、下划线和连字符
func ValidateRoomID(roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// RoomService 提供房间的只读查询，供 HTTP 接口和定时任务使用。
type RoomService struct {
	histories *history.Registry
	presence  *presence.Directory
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(histories *history.Registry, directory *presence.Directory) *RoomService {
	if histories == nil {
		panic("history registry cannot be nil for RoomService")
	}
	if directory == nil {
		panic("presence directory cannot be nil for RoomService")
	}
	return &RoomService{histories: histories, presence: directory}
}

// ListRooms 返回所有有历史或有在线参与者的房间，按 ID 排序。
func (s *RoomService) ListRooms(ctx context.Context) []domain.RoomSummary {
	ids := make(map[string]struct{})
	for _, id := range s.histories.RoomIDs() {
		ids[id] = struct{}{}
	}
	for _, id := range s.presence.Rooms() {
		ids[id] = struct{}{}
	}

	rooms := make([]domain.RoomSummary, 0, len(ids))
	for id := range ids {
		rooms = append(rooms, s.summary(id))
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// GetRoom 返回单个房间的概览。房间既没有历史也没有参与者时返回 ErrRoomNotFound。
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.RoomSummary, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return domain.RoomSummary{}, err
	}
	if _, ok := s.histories.Lookup(roomID); !ok && s.presence.Count(roomID) == 0 {
		return domain.RoomSummary{}, ErrRoomNotFound
	}
	return s.summary(roomID), nil
}

// GetState 返回房间已提交操作的快照。
func (s *RoomService) GetState(ctx context.Context, roomID string) ([]domain.Operation, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "GetState"})
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	engine, ok := s.histories.Lookup(roomID)
	if !ok {
		logCtx.Debug("State requested for unknown room")
		return nil, ErrRoomNotFound
	}
	return engine.Snapshot(), nil
}

func (s *RoomService) summary(roomID string) domain.RoomSummary {
	summary := domain.RoomSummary{ID: roomID, Participants: s.presence.Count(roomID)}
	if engine, ok := s.histories.Lookup(roomID); ok {
		summary.Ops = engine.Len()
		summary.Version = engine.Version()
	}
	return summary
}
