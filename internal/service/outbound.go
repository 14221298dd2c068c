package service

import "collaborative-canvas/internal/protocol"

// Audience 决定一条出站消息的接收者
type Audience int

const (
	// ToSender 只发给触发该消息的连接
	ToSender Audience = iota
	// ToOthers 发给房间内除发送者外的所有连接
	ToOthers
	// ToRoom 发给房间内所有连接，包括发送者
	ToRoom
)

func (a Audience) String() string {
	switch a {
	case ToSender:
		return "sender"
	case ToOthers:
		return "others"
	case ToRoom:
		return "room"
	default:
		return "unknown"
	}
}

// Outbound 是服务层产生的一条待投递消息，由 hub 按顺序执行
type Outbound struct {
	Audience Audience
	Type     string
	Payload  []byte
}

func outbound(audience Audience, msgType string, data interface{}) Outbound {
	return Outbound{Audience: audience, Type: msgType, Payload: protocol.MustEncode(msgType, data)}
}
