// Package protocol defines the JSON wire format exchanged with clients.
// Every frame in either direction is an Envelope; Data carries the
// event-specific payload.
package protocol

import (
	"encoding/json"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
)

// Client -> server event names.
const (
	EventJoinRoom      = "joinRoom"
	EventUsernameTaken = "usernameTaken"
	EventSendMessage   = "sendMessage"
	EventLeaveRoom     = "leaveRoom"
)

// Server -> client event names.
const (
	EventPreviousMessages = "previousMessages"
	EventReceiveMessage   = "receiveMessage"
	EventUsers            = "users"
	EventError            = "error"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is the data of a joinRoom or usernameTaken request.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// SendMessagePayload is the data of a sendMessage request.
type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// UsernameTakenPayload answers a usernameTaken pre-check. The socket.io
// callback acknowledgement of the original client becomes a plain
// request/response pair here.
type UsernameTakenPayload struct {
	Taken bool `json:"taken"`
}

// ErrorPayload carries a human-readable failure reason to the requester.
type ErrorPayload struct {
	Message string `json:"message"`
}

func marshal(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// PreviousMessages encodes the history replay sent to a joining connection.
func PreviousMessages(messages []domain.Message) ([]byte, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	return marshal(EventPreviousMessages, messages)
}

// ReceiveMessage encodes a single chat message for room-wide fan-out.
func ReceiveMessage(msg *domain.Message) ([]byte, error) {
	return marshal(EventReceiveMessage, msg)
}

// Users encodes the current roster of a room.
func Users(usernames []string) ([]byte, error) {
	if usernames == nil {
		usernames = []string{}
	}
	return marshal(EventUsers, usernames)
}

// UsernameTaken encodes the answer to a usernameTaken pre-check.
func UsernameTaken(taken bool) ([]byte, error) {
	return marshal(EventUsernameTaken, UsernameTakenPayload{Taken: taken})
}

// Error encodes an error event for the connection that caused the failure.
func Error(reason string) ([]byte, error) {
	return marshal(EventError, ErrorPayload{Message: reason})
}
