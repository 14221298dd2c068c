package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeArchiveRoom   = "archive:room"     // 为指定房间创建存档
	TypeAutosaveCheck = "archive:autosave" // 周期性检查活跃房间并自动存档
)

// ArchiveRoomPayload 定义了存档任务的数据结构
type ArchiveRoomPayload struct {
	RoomID    string `json:"room_id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// NewArchiveRoomTask 创建一个新的存档任务
func NewArchiveRoomTask(roomID, name, createdBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(ArchiveRoomPayload{RoomID: roomID, Name: name, CreatedBy: createdBy})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	return asynq.NewTask(TypeArchiveRoom, payload, asynq.MaxRetry(3), asynq.Timeout(time.Minute)), nil
}

// NewAutosaveCheckTask 创建周期性自动存档检查任务，没有负载
func NewAutosaveCheckTask() *asynq.Task {
	return asynq.NewTask(TypeAutosaveCheck, nil, asynq.MaxRetry(0), asynq.Timeout(2*time.Minute))
}

// ParseArchiveRoomPayload 解析存档任务负载
func ParseArchiveRoomPayload(t *asynq.Task) (ArchiveRoomPayload, error) {
	var p ArchiveRoomPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal archive payload: %w", err)
	}
	return p, nil
}

// Enqueuer 把 HTTP 请求触发的存档交给 worker 异步执行
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer 创建 Enqueuer 实例
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	if client == nil {
		panic("asynq client cannot be nil for Enqueuer")
	}
	return &Enqueuer{client: client}
}

// EnqueueArchive 入队一个存档任务，返回任务 ID
func (e *Enqueuer) EnqueueArchive(ctx context.Context, roomID, name, createdBy string) (string, error) {
	task, err := NewArchiveRoomTask(roomID, name, createdBy)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue archive task: %w", err)
	}
	return info.ID, nil
}
