package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
	"github.com/Sanket2004/text-sharing-app/internal/protocol"
	"github.com/Sanket2004/text-sharing-app/internal/repository"
)

// DefaultHistoryLimit bounds the history replayed to a joining connection.
const DefaultHistoryLimit = 50

// Broadcaster delivers a pre-encoded event to every connection currently
// registered in a room. Implemented by the hub; enqueueing must not block.
type Broadcaster interface {
	BroadcastToRoom(roomID string, payload []byte)
}

// MessageService is the message pipeline: it validates, persists, and fans
// out chat messages, and serves the bounded history replayed on join.
type MessageService struct {
	repo        repository.MessageRepository
	broadcaster Broadcaster
	historyLim  int
}

// NewMessageService creates a MessageService. historyLimit falls back to
// DefaultHistoryLimit when non-positive.
func NewMessageService(repo repository.MessageRepository, broadcaster Broadcaster, historyLimit int) *MessageService {
	if repo == nil {
		panic("MessageRepository cannot be nil for MessageService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for MessageService")
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &MessageService{repo: repo, broadcaster: broadcaster, historyLim: historyLimit}
}

// History returns up to the configured limit of the room's most recent
// messages, oldest first. Used once per successful join and delivered to the
// joining connection only.
func (s *MessageService) History(ctx context.Context, roomID string) ([]domain.Message, error) {
	messages, err := s.repo.RecentByRoom(ctx, roomID, s.historyLim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return messages, nil
}

// Send persists a message with a server-assigned timestamp and then
// broadcasts it to every connection in the room, sender included. A blank
// body is rejected before persistence; a store failure aborts the broadcast.
func (s *MessageService) Send(ctx context.Context, roomID, connID, username, body string) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &domain.Message{
		RoomID:    roomID,
		SenderID:  connID,
		Username:  username,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to persist message")
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	payload, err := protocol.ReceiveMessage(msg)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to encode message for broadcast")
		return nil, err
	}
	s.broadcaster.BroadcastToRoom(roomID, payload)

	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"conn_id":  connID,
		"username": username,
	}).Debug("Message persisted and broadcast")
	return msg, nil
}
