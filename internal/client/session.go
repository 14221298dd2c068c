// Package client 是画布协议的 Go 客户端：维护 websocket 会话、断线重连，
// 并把服务端消息交给 canvas.Reconciler 渲染。
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/protocol"
)

const writeWait = 10 * time.Second

// ErrNotConnected 表示会话当前没有可用连接
var ErrNotConnected = errors.New("client: not connected")

// RoomURL 根据服务地址和房间 ID 构造 websocket 地址，支持 http(s) 与 ws(s) 前缀
func RoomURL(base, roomID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("client: invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("client: server url %q has no host", base)
	}
	u.Path = "/ws/room/" + url.PathEscape(roomID)
	return u.String(), nil
}

// Session 是一个房间的客户端会话。
// 读协程和调用方的发送方法可以并发执行。
type Session struct {
	url    string
	recon  *canvas.Reconciler
	dialer *websocket.Dialer
	log    *logrus.Entry

	// MaxReconnect 是单次重连的最长总耗时，0 表示一直重试直到 ctx 取消
	MaxReconnect time.Duration

	writeMu sync.Mutex
	connMu  sync.Mutex
	conn    *websocket.Conn

	stateMu sync.RWMutex
	self    domain.Participant
	users   map[string]domain.Participant
	cursors map[string]protocol.CursorPayload
	latency time.Duration
	synced  chan struct{}
	syncOne sync.Once
}

// NewSession 创建会话，reconciler 用于接收渲染更新
func NewSession(wsURL string, recon *canvas.Reconciler) *Session {
	if recon == nil {
		panic("reconciler cannot be nil for Session")
	}
	return &Session{
		url:     wsURL,
		recon:   recon,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     logrus.WithField("url", wsURL),
		users:   make(map[string]domain.Participant),
		cursors: make(map[string]protocol.CursorPayload),
		synced:  make(chan struct{}),
	}
}

// Connect 建立连接，失败时按指数退避重试。握手被拒绝（4xx）不重试。
func (s *Session) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = s.MaxReconnect

	dial := func() error {
		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("client: handshake rejected with %d: %w", resp.StatusCode, err))
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.WithError(err).WithField("retry_in", wait).Warn("Dial failed, retrying")
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}
	s.log.Info("Connected")
	return nil
}

// Run 读取并处理消息，连接断开后自动重连，直到 ctx 取消或重连失败。
// 调用前必须先成功 Connect。
func (s *Session) Run(ctx context.Context) error {
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Warn("Connection lost, reconnecting")
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.Handle(raw); err != nil {
			s.log.WithError(err).Warn("Failed to handle server message")
		}
	}
}

// Close 发送关闭帧并断开当前连接
func (s *Session) Close() error {
	conn := s.currentConn()
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return conn.Close()
}

// Handle 处理一条服务端消息
func (s *Session) Handle(raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.TypeInit:
		var p protocol.InitPayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.self = domain.Participant{ID: p.ID, Color: p.Color, Name: p.Name}
		s.users = make(map[string]domain.Participant, len(p.Users))
		for _, u := range p.Users {
			s.users[u.ID] = u
		}
		s.stateMu.Unlock()
		s.recon.Resync(p.State.Ops)
		s.syncOne.Do(func() { close(s.synced) })
	case protocol.TypeState:
		var p protocol.StatePayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.recon.Resync(p.Ops)
	case protocol.TypeStroke:
		op, err := env.Operation()
		if err != nil {
			return err
		}
		s.recon.Apply(op)
	case protocol.TypeRemoveOp:
		id, err := env.OpID()
		if err != nil {
			return err
		}
		s.recon.Remove(id)
	case protocol.TypeClear:
		s.recon.Clear()
	case protocol.TypeUserJoined:
		var p domain.Participant
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.users[p.ID] = p
		s.stateMu.Unlock()
	case protocol.TypeUserLeft:
		var p protocol.UserLeftPayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.stateMu.Lock()
		delete(s.users, p.ID)
		delete(s.cursors, p.ID)
		s.stateMu.Unlock()
		s.recon.RemoveAuthorTransients(p.ID)
	case protocol.TypeUserUpdated:
		var p protocol.UserUpdatedPayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.stateMu.Lock()
		if u, ok := s.users[p.ID]; ok {
			u.Name = p.Name
			s.users[p.ID] = u
		}
		if s.self.ID == p.ID {
			s.self.Name = p.Name
		}
		s.stateMu.Unlock()
	case protocol.TypeCursor:
		var p protocol.CursorPayload
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.cursors[p.ID] = p
		s.stateMu.Unlock()
	case protocol.TypePongCheck:
		var sent int64
		if err := env.DecodeData(&sent); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.latency = time.Since(time.UnixMilli(sent))
		s.stateMu.Unlock()
	case protocol.TypeError:
		var p protocol.ErrorPayload
		_ = env.DecodeData(&p)
		s.log.WithField("message", p.Message).Warn("Server reported an error")
	default:
		s.log.WithField("type", env.Type).Debug("Ignoring unknown message type")
	}
	return nil
}

// Synced 在收到第一条 init 后关闭
func (s *Session) Synced() <-chan struct{} { return s.synced }

// Self 返回服务端分配的本地参与者信息
func (s *Session) Self() domain.Participant {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.self
}

// Users 返回当前房间的参与者，按 ID 排序
func (s *Session) Users() []domain.Participant {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]domain.Participant, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) Cursor(id string) (protocol.CursorPayload, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	c, ok := s.cursors[id]
	return c, ok
}

// Latency 返回最近一次 pingCheck 的往返时间
func (s *Session) Latency() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.latency
}

// SendStroke 先在本地应用再发送，本地立即可见
func (s *Session) SendStroke(op domain.Operation) error {
	s.recon.Apply(op)
	return s.send(protocol.TypeStroke, op)
}

func (s *Session) Undo() error  { return s.send(protocol.TypeUndo, nil) }
func (s *Session) Redo() error  { return s.send(protocol.TypeRedo, nil) }
func (s *Session) Clear() error { return s.send(protocol.TypeClear, nil) }

func (s *Session) RemoveOp(id string) error {
	return s.send(protocol.TypeRemoveOp, protocol.RemoveOpPayload{ID: id})
}

func (s *Session) MoveCursor(x, y float64) error {
	return s.send(protocol.TypeCursor, protocol.CursorPayload{X: x, Y: y})
}

func (s *Session) SetName(name string) error {
	return s.send(protocol.TypeSetName, name)
}

// Ping 发送当前毫秒时间戳，服务端原样回显为 pongCheck
func (s *Session) Ping() error {
	return s.send(protocol.TypePingCheck, time.Now().UnixMilli())
}

func (s *Session) send(msgType string, data interface{}) error {
	raw, err := protocol.Encode(msgType, data)
	if err != nil {
		return err
	}
	conn := s.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("client: send %s: %w", msgType, err)
	}
	return nil
}

func (s *Session) currentConn() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}
