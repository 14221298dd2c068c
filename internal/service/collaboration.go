package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/history"
	"collaborative-canvas/internal/presence"
	"collaborative-canvas/internal/protocol"

	"github.com/sirupsen/logrus"
)

// CollaborationService 负责处理房间内的实时协作消息。
// 每个方法返回需要投递的出站消息，调用方（hub）需保证同一房间的调用串行执行。
type CollaborationService struct {
	histories *history.Registry
	presence  *presence.Directory

	// 每个连接尚未收到 final 的预览 ID，断线时用于清理其他客户端上的残留
	previewsMu sync.Mutex
	previews   map[string]map[string]map[string]struct{} // room -> conn -> op ids
}

// NewCollaborationService 创建 CollaborationService 实例
func NewCollaborationService(histories *history.Registry, directory *presence.Directory) *CollaborationService {
	if histories == nil {
		panic("history registry cannot be nil for CollaborationService")
	}
	if directory == nil {
		panic("presence directory cannot be nil for CollaborationService")
	}
	return &CollaborationService{
		histories: histories,
		presence:  directory,
		previews:  make(map[string]map[string]map[string]struct{}),
	}
}

// Join 登记新连接：先给新连接发 init，再通知其他人 userJoined
func (s *CollaborationService) Join(ctx context.Context, roomID, connID string) (domain.Participant, []Outbound) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "operation": "Join"})

	participant := s.presence.Add(roomID, connID, domain.Participant{
		Color: s.presence.RandomColor(),
		Name:  presence.DefaultName(connID),
	})
	snapshot := s.histories.Get(roomID).Snapshot()

	init := protocol.InitPayload{
		ID:    participant.ID,
		Color: participant.Color,
		Name:  participant.Name,
		State: protocol.StatePayload{Ops: snapshot},
		Users: s.presence.List(roomID),
	}
	logCtx.WithField("ops", len(snapshot)).Info("Participant joined room")
	return participant, []Outbound{
		outbound(ToSender, protocol.TypeInit, init),
		outbound(ToOthers, protocol.TypeUserJoined, participant),
	}
}

// Leave 移除连接，通知其他人 userLeft，并撤掉该连接遗留的预览
func (s *CollaborationService) Leave(ctx context.Context, roomID, connID string) []Outbound {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "operation": "Leave"})

	if _, ok := s.presence.Remove(roomID, connID); !ok {
		logCtx.Debug("Leave called for unknown participant")
	}
	out := []Outbound{outbound(ToOthers, protocol.TypeUserLeft, protocol.UserLeftPayload{ID: connID})}

	engine := s.histories.Get(roomID)
	for _, id := range s.takePreviews(roomID, connID) {
		if engine.Committed(id) {
			continue
		}
		out = append(out, outbound(ToOthers, protocol.TypeRemoveOp, protocol.RemoveOpPayload{ID: id}))
	}
	if n := len(out) - 1; n > 0 {
		logCtx.WithField("orphaned_previews", n).Info("Removed unfinished previews of departing participant")
	}
	// 最后一人离开且没有任何历史时回收引擎
	if s.presence.Count(roomID) == 0 && engine.Len() == 0 && len(engine.Undone()) == 0 {
		s.histories.Drop(roomID)
	}
	logCtx.Info("Participant left room")
	return out
}

// HandleMessage 解码一条原始消息并分派到对应的处理方法。
// 信封格式错误时给发送者回 error 消息，同时返回错误供调用方记录。
func (s *CollaborationService) HandleMessage(ctx context.Context, roomID, connID string, raw []byte) ([]Outbound, error) {
	env, err := protocol.Decode(raw)
	if err != nil {
		return []Outbound{outbound(ToSender, protocol.TypeError, protocol.ErrorPayload{Message: "malformed message"})}, err
	}

	switch env.Type {
	case protocol.TypeStroke:
		op, err := env.Operation()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		return s.HandleStroke(ctx, roomID, connID, op)
	case protocol.TypeUndo:
		return s.Undo(ctx, roomID, connID), nil
	case protocol.TypeRedo:
		return s.Redo(ctx, roomID, connID), nil
	case protocol.TypeClear:
		return s.Clear(ctx, roomID, connID), nil
	case protocol.TypeRemoveOp:
		id, err := env.OpID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		return s.RemoveOp(ctx, roomID, connID, id), nil
	case protocol.TypeCursor:
		var pos protocol.CursorPayload
		if err := env.DecodeData(&pos); err != nil {
			return nil, err
		}
		return s.Cursor(ctx, roomID, connID, pos), nil
	case protocol.TypeSetName:
		return s.SetName(ctx, roomID, connID, env.Name()), nil
	case protocol.TypePingCheck:
		return s.Ping(env.Data), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, env.Type)
	}
}

// HandleStroke 处理 stroke：final 先提交再转发，预览直接转发不持久化。
// 曾提交过的 ID（即使已撤销或清空）的迟到预览和重复 final 都会被丢弃。
func (s *CollaborationService) HandleStroke(ctx context.Context, roomID, connID string, op domain.Operation) ([]Outbound, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "op_id": op.ID, "operation": "HandleStroke"})

	if err := op.Validate(); err != nil {
		logCtx.WithError(err).Warn("Rejected malformed stroke")
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	op.AuthorID = connID
	engine := s.histories.Get(roomID)

	if !op.Final {
		if engine.Committed(op.ID) {
			logCtx.Debug("Ignoring preview for an already committed operation")
			return nil, nil
		}
		s.trackPreview(roomID, connID, op.ID)
		return []Outbound{outbound(ToOthers, protocol.TypeStroke, op)}, nil
	}

	s.untrackPreview(roomID, connID, op.ID)
	stored, ok := engine.Commit(op)
	if !ok {
		logCtx.Debug("Ignoring duplicate final operation")
		return nil, nil
	}
	logCtx.WithFields(logrus.Fields{"tool": stored.Tool, "points": len(stored.Points)}).Debug("Operation committed")
	return []Outbound{outbound(ToOthers, protocol.TypeStroke, stored)}, nil
}

// Undo 执行全局撤销。只有确实撤销了操作才发 removeOp，但总是广播 state。
func (s *CollaborationService) Undo(ctx context.Context, roomID, connID string) []Outbound {
	engine := s.histories.Get(roomID)
	var out []Outbound
	if op, ok := engine.Undo(); ok {
		out = append(out, outbound(ToRoom, protocol.TypeRemoveOp, protocol.RemoveOpPayload{ID: op.ID}))
		logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "op_id": op.ID}).Info("Undo applied")
	}
	return append(out, s.stateBroadcast(engine))
}

// Redo 重做最近撤销的操作，成功时向全房间重发该 stroke，随后广播 state
func (s *CollaborationService) Redo(ctx context.Context, roomID, connID string) []Outbound {
	engine := s.histories.Get(roomID)
	var out []Outbound
	if op, ok := engine.Redo(); ok {
		out = append(out, outbound(ToRoom, protocol.TypeStroke, op))
		logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "op_id": op.ID}).Info("Redo applied")
	}
	return append(out, s.stateBroadcast(engine))
}

// Clear 清空房间历史，广播 clear 和空的 state
func (s *CollaborationService) Clear(ctx context.Context, roomID, connID string) []Outbound {
	engine := s.histories.Get(roomID)
	count := engine.Len()
	engine.Clear()
	logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "cleared_ops": count}).Info("Room cleared")
	return []Outbound{
		outbound(ToRoom, protocol.TypeClear, nil),
		s.stateBroadcast(engine),
	}
}

// RemoveOp 显式删除一个已提交操作。未找到时不产生任何消息。
func (s *CollaborationService) RemoveOp(ctx context.Context, roomID, connID, opID string) []Outbound {
	engine := s.histories.Get(roomID)
	if _, ok := engine.RemoveByID(opID); !ok {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "op_id": opID}).Debug("removeOp for unknown operation")
		return nil
	}
	return []Outbound{
		outbound(ToRoom, protocol.TypeRemoveOp, protocol.RemoveOpPayload{ID: opID}),
		s.stateBroadcast(engine),
	}
}

// SetName 清洗并更新显示名称，向全房间广播 userUpdated
func (s *CollaborationService) SetName(ctx context.Context, roomID, connID, raw string) []Outbound {
	name := s.presence.SanitizeName(raw)
	updated, ok := s.presence.Update(roomID, connID, domain.ParticipantFields{Name: &name})
	if !ok {
		return nil
	}
	return []Outbound{outbound(ToRoom, protocol.TypeUserUpdated, protocol.UserUpdatedPayload{ID: updated.ID, Name: updated.Name})}
}

// Cursor 转发光标位置，补充发送者的 id、颜色和名称
func (s *CollaborationService) Cursor(ctx context.Context, roomID, connID string, pos protocol.CursorPayload) []Outbound {
	pos.ID = connID
	if p, ok := s.presence.Get(roomID, connID); ok {
		pos.Color = p.Color
		pos.Name = p.Name
	}
	return []Outbound{outbound(ToOthers, protocol.TypeCursor, pos)}
}

// Ping 原样回显时间戳
func (s *CollaborationService) Ping(ts json.RawMessage) []Outbound {
	var payload interface{}
	if len(ts) > 0 {
		payload = ts
	}
	return []Outbound{outbound(ToSender, protocol.TypePongCheck, payload)}
}

// Snapshot 返回房间的已提交操作
func (s *CollaborationService) Snapshot(roomID string) []domain.Operation {
	return s.histories.Get(roomID).Snapshot()
}

func (s *CollaborationService) stateBroadcast(engine *history.Engine) Outbound {
	return outbound(ToRoom, protocol.TypeState, protocol.StatePayload{Ops: engine.Snapshot()})
}

func (s *CollaborationService) trackPreview(roomID, connID, opID string) {
	s.previewsMu.Lock()
	defer s.previewsMu.Unlock()
	room, ok := s.previews[roomID]
	if !ok {
		room = make(map[string]map[string]struct{})
		s.previews[roomID] = room
	}
	set, ok := room[connID]
	if !ok {
		set = make(map[string]struct{})
		room[connID] = set
	}
	set[opID] = struct{}{}
}

func (s *CollaborationService) untrackPreview(roomID, connID, opID string) {
	s.previewsMu.Lock()
	defer s.previewsMu.Unlock()
	if set, ok := s.previews[roomID][connID]; ok {
		delete(set, opID)
	}
}

func (s *CollaborationService) takePreviews(roomID, connID string) []string {
	s.previewsMu.Lock()
	defer s.previewsMu.Unlock()
	room, ok := s.previews[roomID]
	if !ok {
		return nil
	}
	set := room[connID]
	delete(room, connID)
	if len(room) == 0 {
		delete(s.previews, roomID)
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// IsClientError 判断错误是否由客户端输入引起（只需 Warn 级别日志）
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrUnknownMessage) ||
		errors.Is(err, protocol.ErrMalformedMessage)
}
