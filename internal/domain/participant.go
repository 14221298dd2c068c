package domain

import "time"

// Participant 表示房间中的一个连接参与者，由 presence 目录持有。
type Participant struct {
	ID       string    `json:"id"`
	Color    string    `json:"color"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"-"`
}

// ParticipantFields 是可更新的参与者字段，nil 表示不修改
type ParticipantFields struct {
	Name  *string
	Color *string
}

// RoomSummary 是活跃房间的概览，供 HTTP 接口和自动存档任务使用
type RoomSummary struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
	Ops          int    `json:"ops"`
	Version      uint64 `json:"version"`
}
