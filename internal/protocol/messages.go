// Package protocol 定义客户端与服务端之间的消息信封和各消息负载。
// 每个 websocket 文本帧都是一个 {"type": ..., "data": ...} 信封。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"collaborative-canvas/internal/domain"
)

// 消息类型
const (
	TypeStroke      = "stroke"
	TypeUndo        = "undo"
	TypeRedo        = "redo"
	TypeClear       = "clear"
	TypeRemoveOp    = "removeOp"
	TypeState       = "state"
	TypeInit        = "init"
	TypeCursor      = "cursor"
	TypeSetName     = "setName"
	TypeUserJoined  = "userJoined"
	TypeUserLeft    = "userLeft"
	TypeUserUpdated = "userUpdated"
	TypePingCheck   = "pingCheck"
	TypePongCheck   = "pongCheck"
	TypeError       = "error"
)

var ErrMalformedMessage = errors.New("protocol: malformed message")

// Envelope 是线上的消息信封，Data 延迟解码
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StatePayload 是权威快照，只包含已提交的最终操作
type StatePayload struct {
	Ops []domain.Operation `json:"ops"`
}

// InitPayload 是连接建立后发送给新客户端的第一条消息
type InitPayload struct {
	ID    string               `json:"id"`
	Color string               `json:"color"`
	Name  string               `json:"name"`
	State StatePayload         `json:"state"`
	Users []domain.Participant `json:"users"`
}

type RemoveOpPayload struct {
	ID string `json:"id"`
}

// CursorPayload 是光标旁路消息，服务端转发时补充 id、颜色和名称
type CursorPayload struct {
	ID    string  `json:"id,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color,omitempty"`
	Name  string  `json:"name,omitempty"`
}

type UserLeftPayload struct {
	ID string `json:"id"`
}

type UserUpdatedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode 将类型和负载编码为一个信封。data 为 nil 时省略 data 字段。
func Encode(msgType string, data interface{}) ([]byte, error) {
	env := Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", msgType, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// MustEncode 用于负载类型固定、不可能编码失败的场景
func MustEncode(msgType string, data interface{}) []byte {
	b, err := Encode(msgType, data)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode 解析信封，缺少 type 时返回 ErrMalformedMessage
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}

// HasData 判断信封是否带有非空负载
func (e Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// DecodeData 将负载解码到 v
func (e Envelope) DecodeData(v interface{}) error {
	if !e.HasData() {
		return fmt.Errorf("%w: %s without data", ErrMalformedMessage, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, e.Type, err)
	}
	return nil
}

// Operation 解码 stroke 负载
func (e Envelope) Operation() (domain.Operation, error) {
	var op domain.Operation
	err := e.DecodeData(&op)
	return op, err
}

// OpID 解码 removeOp 负载。兼容纯字符串和 {id} 两种形式。
func (e Envelope) OpID() (string, error) {
	var id string
	if err := json.Unmarshal(e.Data, &id); err == nil && id != "" {
		return id, nil
	}
	var p RemoveOpPayload
	if err := e.DecodeData(&p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", fmt.Errorf("%w: removeOp without id", ErrMalformedMessage)
	}
	return p.ID, nil
}

// Name 解码 setName 负载，非字符串时返回空串交给清洗逻辑处理
func (e Envelope) Name() string {
	var name string
	if err := json.Unmarshal(e.Data, &name); err != nil {
		return ""
	}
	return name
}
