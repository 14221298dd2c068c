package service

import (
	"errors"

	"collaborative-canvas/internal/repository"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrArchiveNotFound   = errors.New("archive not found")
	ErrThumbnailNotFound = errors.New("thumbnail not found")
	ErrInvalidOperation  = errors.New("invalid operation data")
	ErrUnknownMessage    = errors.New("unknown message type")
	ErrInternalServer    = errors.New("internal server error")
)

// mapRepoError 将仓库层错误映射为服务层错误
func mapRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return ErrInternalServer
}
