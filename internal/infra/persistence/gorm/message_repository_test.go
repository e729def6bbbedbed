package gormpersistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
)

func newTestRepo(t *testing.T) *GormMessageRepository {
	t.Helper()
	// A named in-memory database per test; cache=shared keeps it alive across
	// the pool's connections without leaking state between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Message{}))
	return NewGormMessageRepository(db)
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	msg := &domain.Message{RoomID: "r1", SenderID: "c1", Username: "alice", Body: "hello"}
	require.NoError(t, repo.Append(ctx, msg))

	assert.NotZero(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestRecentByRoomOrdersOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Append(ctx, &domain.Message{
			RoomID: "r1", SenderID: "c1", Username: "alice",
			Body: fmt.Sprintf("msg-%d", i),
		}))
	}

	messages, err := repo.RecentByRoom(ctx, "r1", 50)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "msg-1", messages[0].Body)
	assert.Equal(t, "msg-3", messages[2].Body)
}

func TestRecentByRoomKeepsNewestWhenOverLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Append(ctx, &domain.Message{
			RoomID: "r1", SenderID: "c1", Username: "alice",
			Body: fmt.Sprintf("msg-%d", i),
		}))
	}

	messages, err := repo.RecentByRoom(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	// The two newest, still ascending.
	assert.Equal(t, "msg-4", messages[0].Body)
	assert.Equal(t, "msg-5", messages[1].Body)
}

func TestRecentByRoomScopedToRoom(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, &domain.Message{RoomID: "r1", SenderID: "c1", Username: "alice", Body: "one"}))
	require.NoError(t, repo.Append(ctx, &domain.Message{RoomID: "r2", SenderID: "c2", Username: "bob", Body: "two"}))

	messages, err := repo.RecentByRoom(ctx, "r1", 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "one", messages[0].Body)

	empty, err := repo.RecentByRoom(ctx, "no-such-room", 50)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecentByRoomIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, &domain.Message{RoomID: "r1", SenderID: "c1", Username: "alice", Body: "hello"}))

	first, err := repo.RecentByRoom(ctx, "r1", 50)
	require.NoError(t, err)
	second, err := repo.RecentByRoom(ctx, "r1", 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPruneBeforeRemovesOnlyOldMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := &domain.Message{RoomID: "r1", SenderID: "c1", Username: "alice", Body: "old",
		CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, repo.Append(ctx, old))
	require.NoError(t, repo.Append(ctx, &domain.Message{RoomID: "r1", SenderID: "c1", Username: "alice", Body: "fresh"}))

	removed, err := repo.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	messages, err := repo.RecentByRoom(ctx, "r1", 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "fresh", messages[0].Body)
}
