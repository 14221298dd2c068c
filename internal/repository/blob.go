package repository

import "context"

// BlobStore 保存存档缩略图等二进制对象，可由本地文件系统或 S3 实现。
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get 读取对象，不存在时返回 ErrBlobNotFound。
	Get(ctx context.Context, key string) ([]byte, error)
}
