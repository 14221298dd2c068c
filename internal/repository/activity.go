package repository

import "context"

// ActivityRepository 记录自动存档的进度，通常由 Redis 实现，
// 这样 worker 重启后不会对没有变化的房间重复存档。
type ActivityRepository interface {
	// GetArchivedVersion 返回房间上次自动存档时的历史版本号，没有记录时返回 0。
	GetArchivedVersion(ctx context.Context, roomID string) (uint64, error)

	// SetArchivedVersion 记录房间最近一次自动存档的历史版本号。
	SetArchivedVersion(ctx context.Context, roomID string, version uint64) error
}
