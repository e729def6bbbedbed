// Package tasks defines the asynq task types and payloads shared between the
// scheduler and the worker.
package tasks

import "encoding/json"

// TypeMessagePrune is the periodic message-retention task.
const TypeMessagePrune = "message:prune"

// MessagePrunePayload configures one pruning run.
type MessagePrunePayload struct {
	// RetentionHours is how far back messages are kept; anything older is
	// deleted.
	RetentionHours int `json:"retention_hours"`
}

// NewMessagePruneTask serializes the payload for a prune task.
func NewMessagePruneTask(retentionHours int) ([]byte, error) {
	return json.Marshal(MessagePrunePayload{RetentionHours: retentionHours})
}
