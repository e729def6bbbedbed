package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/repository"
	"github.com/Sanket2004/text-sharing-app/internal/tasks"
)

// MessagePruneHandler deletes messages that have aged out of the retention
// window.
type MessagePruneHandler struct {
	repo repository.MessageRepository
}

// NewMessagePruneHandler creates a MessagePruneHandler.
func NewMessagePruneHandler(repo repository.MessageRepository) *MessagePruneHandler {
	if repo == nil {
		panic("MessageRepository cannot be nil for MessagePruneHandler")
	}
	return &MessagePruneHandler{repo: repo}
}

// ProcessTask handles one prune run.
func (h *MessagePruneHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.MessagePrunePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal prune payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RetentionHours <= 0 {
		return fmt.Errorf("invalid retention window %d: %w", payload.RetentionHours, asynq.SkipRetry)
	}

	cutoff := time.Now().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	removed, err := h.repo.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune messages before %v: %w", cutoff, err)
	}

	logrus.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"removed": removed,
	}).Info("Message retention prune completed")
	return nil
}
