package repository

import (
	"context"
	"time"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
)

// MessageRepository defines storage for chat messages. Append is atomic per
// message; reads are snapshot reads with no coupling to live room state.
type MessageRepository interface {
	// Append persists a new message. The store assigns ID and CreatedAt.
	Append(ctx context.Context, msg *domain.Message) error

	// RecentByRoom returns up to limit of the newest messages for the room,
	// ordered oldest to newest (creation order breaks timestamp ties).
	RecentByRoom(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	// PruneBefore deletes messages created before cutoff and returns how many
	// rows were removed. Used by the retention worker.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
