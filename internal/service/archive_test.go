package service_test

import (
	"context"
	"errors"
	"testing"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/history"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seededRegistry(t *testing.T, roomID string, ids ...string) *history.Registry {
	t.Helper()
	reg := history.NewRegistry(nil)
	engine := reg.Get(roomID)
	for _, id := range ids {
		_, ok := engine.Commit(pencil(id, true))
		require.True(t, ok)
	}
	return reg
}

func TestArchiveService_CreateArchive_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	reg := seededRegistry(t, "room-1", "A", "B")
	svc := service.NewArchiveService(repo, blobs, nil, reg)

	blobs.On("Put", ctx, mock.MatchedBy(func(key string) bool {
		return len(key) > len("thumbnails/")
	}), mock.AnythingOfType("[]uint8"), "image/png").Return(nil).Once()
	repo.On("Save", ctx, mock.MatchedBy(func(a *domain.Archive) bool {
		ops, err := a.ParseOps()
		return err == nil && len(ops) == 2 && a.RoomID == "room-1" && a.Version == 2
	})).Return(nil).Once()

	// Act
	archive, err := svc.CreateArchive(ctx, "room-1", "  Sprint review ", "alice")

	// Assert
	require.NoError(t, err)
	assert.Len(t, archive.ID, 26, "archive ids are ULIDs")
	assert.Equal(t, "Sprint review", archive.Name)
	assert.Equal(t, "alice", archive.CreatedBy)
	assert.Equal(t, 2, archive.OpCount)
	assert.Equal(t, "thumbnails/"+archive.ID+".png", archive.ThumbnailKey)
}

func TestArchiveService_CreateArchive_ThumbnailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	svc := service.NewArchiveService(repo, blobs, nil, seededRegistry(t, "r", "A"))

	blobs.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
	repo.On("Save", ctx, mock.AnythingOfType("*domain.Archive")).Return(nil).Once()

	archive, err := svc.CreateArchive(ctx, "r", "", "bob")

	require.NoError(t, err)
	assert.Empty(t, archive.ThumbnailKey)
	assert.Contains(t, archive.Name, "Archive ")
}

func TestArchiveService_CreateArchive_UnknownRoom(t *testing.T) {
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	svc := service.NewArchiveService(repo, blobs, nil, history.NewRegistry(nil))

	_, err := svc.CreateArchive(context.Background(), "nobody-here", "x", "y")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)

	_, err = svc.CreateArchive(context.Background(), "bad room!", "x", "y")
	assert.ErrorIs(t, err, service.ErrInvalidRoomID)

	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestArchiveService_CreateArchive_SaveFails(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	svc := service.NewArchiveService(repo, blobs, nil, seededRegistry(t, "r", "A"))

	blobs.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("Save", ctx, mock.Anything).Return(repository.ErrDuplicateEntry).Once()

	_, err := svc.CreateArchive(ctx, "r", "x", "y")
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestArchiveService_GetArchive(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	svc := service.NewArchiveService(repo, mocks.NewBlobStore(t), nil, history.NewRegistry(nil))

	stored := &domain.Archive{ID: "01HX", RoomID: "r"}
	require.NoError(t, stored.SetOps([]domain.Operation{pencil("A", true)}))
	repo.On("FindByID", ctx, "01HX").Return(stored, nil).Once()
	repo.On("FindByID", ctx, "missing").Return(nil, repository.ErrArchiveNotFound).Once()
	repo.On("FindByID", ctx, "boom").Return(nil, errors.New("connection reset")).Once()

	archive, ops, err := svc.GetArchive(ctx, "01HX")
	require.NoError(t, err)
	assert.Equal(t, "r", archive.RoomID)
	require.Len(t, ops, 1)
	assert.Equal(t, "A", ops[0].ID)

	_, _, err = svc.GetArchive(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrArchiveNotFound)

	_, _, err = svc.GetArchive(ctx, "boom")
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestArchiveService_GetThumbnail(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	svc := service.NewArchiveService(repo, blobs, nil, history.NewRegistry(nil))

	repo.On("FindByID", ctx, "with").Return(&domain.Archive{ID: "with", ThumbnailKey: "thumbnails/with.png"}, nil).Once()
	repo.On("FindByID", ctx, "without").Return(&domain.Archive{ID: "without"}, nil).Once()
	blobs.On("Get", ctx, "thumbnails/with.png").Return([]byte("png"), nil).Once()

	data, err := svc.GetThumbnail(ctx, "with")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = svc.GetThumbnail(ctx, "without")
	assert.ErrorIs(t, err, service.ErrThumbnailNotFound)
}

func TestArchiveService_ListArchives_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	svc := service.NewArchiveService(repo, mocks.NewBlobStore(t), nil, history.NewRegistry(nil))

	repo.On("ListByRoom", ctx, "r", 50).Return([]domain.Archive{{ID: "1"}}, nil).Once()
	repo.On("ListByRoom", ctx, "r", 200).Return(nil, errors.New("db down")).Once()

	list, err := svc.ListArchives(ctx, "r", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListArchives(ctx, "r", 10000)
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestArchiveService_AutosaveActive_SkipsUnchangedRooms(t *testing.T) {
	// Arrange: changed 有新提交，unchanged 的版本已存档，empty 从未提交
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	activity := mocks.NewActivityRepository(t)

	reg := seededRegistry(t, "changed", "A", "B")
	_, _ = reg.Get("unchanged").Commit(pencil("X", true))
	reg.Get("empty")

	svc := service.NewArchiveService(repo, blobs, activity, reg)

	activity.On("GetArchivedVersion", ctx, "changed").Return(uint64(1), nil).Once()
	activity.On("GetArchivedVersion", ctx, "unchanged").Return(uint64(1), nil).Once()
	blobs.On("Put", ctx, mock.Anything, mock.Anything, "image/png").Return(nil).Once()
	repo.On("Save", ctx, mock.MatchedBy(func(a *domain.Archive) bool {
		return a.RoomID == "changed" && a.CreatedBy == service.AutosaveAuthor
	})).Return(nil).Once()
	activity.On("SetArchivedVersion", ctx, "changed", uint64(2)).Return(nil).Once()

	// Act
	saved, err := svc.AutosaveActive(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	activity.AssertNotCalled(t, "GetArchivedVersion", ctx, "empty")
}

func TestArchiveService_AutosaveActive_InProcessProgressWithoutRedis(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewArchiveRepository(t)
	blobs := mocks.NewBlobStore(t)
	reg := seededRegistry(t, "r", "A")
	svc := service.NewArchiveService(repo, blobs, nil, reg)

	blobs.On("Put", ctx, mock.Anything, mock.Anything, "image/png").Return(nil).Twice()
	repo.On("Save", ctx, mock.AnythingOfType("*domain.Archive")).Return(nil).Twice()

	// 第一次存档，之后历史没变就不再存
	for i, want := range []int{1, 0, 0} {
		saved, err := svc.AutosaveActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, saved, "tick %d", i)
	}

	_, _ = reg.Get("r").Commit(pencil("B", true))
	saved, err := svc.AutosaveActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	saved, err = svc.AutosaveActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
}
