package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/repository"
)

// FilesystemStore 把对象保存为 basePath 下的普通文件，key 中的 "/" 对应子目录
type FilesystemStore struct {
	basePath string
}

// NewFilesystemStore 创建 FilesystemStore，并确保根目录存在
func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("blob: failed to create base directory %s: %w", basePath, err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

// path 把 key 解析为 basePath 内的路径，拒绝越界的 key
func (s *FilesystemStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "file_path": p, "content_type": contentType})

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		log.WithError(err).Error("Failed to create blob directory")
		return fmt.Errorf("blob: failed to create directory for %s: %w", key, err)
	}
	// 先写临时文件再改名，读者不会看到写了一半的对象
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.WithError(err).Error("Failed to write blob")
		return fmt.Errorf("blob: failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blob: failed to move %s into place: %w", key, err)
	}
	log.WithField("bytes", len(data)).Debug("Blob stored")
	return nil
}

func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, repository.ErrBlobNotFound
		}
		logrus.WithField("key", key).WithError(err).Error("Failed to read blob")
		return nil, fmt.Errorf("blob: failed to read %s: %w", key, err)
	}
	return data, nil
}
