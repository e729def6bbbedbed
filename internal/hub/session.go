package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/protocol"
	"github.com/Sanket2004/text-sharing-app/internal/service"
)

// State is the lifecycle phase of a connection's room binding.
type State int

const (
	// StateUnbound accepts only a join request.
	StateUnbound State = iota
	// StateJoining marks a join in flight.
	StateJoining
	// StateJoined accepts sends and an explicit leave.
	StateJoined
	// StateLeft is terminal for the binding; the connection stays open and a
	// fresh join is allowed.
	StateLeft
	// StateDisconnected is terminal for the connection.
	StateDisconnected
)

// Session is the per-connection state machine. It decodes incoming events,
// consults the presence manager and message pipeline, and emits the resulting
// events through the hub. All events for one connection arrive sequentially
// from its read pump; the mutex only guards races between that goroutine and
// transport-level disconnects.
type Session struct {
	mu       sync.Mutex
	state    State
	roomID   string
	username string

	client   *Client
	presence *service.PresenceService
	pipeline *service.MessageService
}

func newSession(c *Client, presence *service.PresenceService, pipeline *service.MessageService) *Session {
	if presence == nil {
		panic("PresenceService cannot be nil for Session")
	}
	if pipeline == nil {
		panic("MessageService cannot be nil for Session")
	}
	return &Session{
		state:    StateUnbound,
		client:   c,
		presence: presence,
		pipeline: pipeline,
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the current room binding, or empty strings when unbound.
func (s *Session) Room() (roomID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.username
}

// HandleEvent dispatches one raw frame from the client.
func (s *Session) HandleEvent(raw []byte) {
	logCtx := logrus.WithField("conn_id", s.client.ID())

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logCtx.WithError(err).Warn("Dropping malformed frame")
		s.sendError("malformed event")
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.sendError("malformed joinRoom payload")
			return
		}
		s.handleJoin(p.RoomID, p.Username)

	case protocol.EventUsernameTaken:
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.sendError("malformed usernameTaken payload")
			return
		}
		s.handleUsernameTaken(p.RoomID, p.Username)

	case protocol.EventSendMessage:
		var p protocol.SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.sendError("malformed sendMessage payload")
			return
		}
		s.handleSend(p.RoomID, p.Message)

	case protocol.EventLeaveRoom:
		var roomID string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &roomID); err != nil {
				s.sendError("malformed leaveRoom payload")
				return
			}
		}
		s.handleLeave()

	default:
		logCtx.Warnf("Unknown event %q", env.Event)
		s.sendError("unknown event")
	}
}

// handleJoin runs the Unbound -> Joining -> Joined transition. On success the
// joiner receives the room history followed by the room-wide roster update;
// failures surface only to this connection and never mutate the registry.
func (s *Session) handleJoin(roomID, username string) {
	s.mu.Lock()
	switch s.state {
	case StateUnbound, StateLeft:
		s.state = StateJoining
	case StateJoining, StateJoined:
		s.mu.Unlock()
		s.sendError("already in a room, leave it first")
		return
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.presence.Join(roomID, s.client.ID(), username); err != nil {
		s.mu.Lock()
		if s.state == StateJoining {
			s.state = StateUnbound
		}
		s.mu.Unlock()
		s.sendError(joinFailureReason(err))
		return
	}

	s.mu.Lock()
	if s.state != StateJoining {
		// The transport dropped while the join was in flight; undo the
		// registration so no orphaned entry survives the connection.
		s.mu.Unlock()
		s.presence.Leave(roomID, s.client.ID())
		s.broadcastRoster(roomID)
		return
	}
	s.state = StateJoined
	s.roomID = roomID
	s.username = username
	s.mu.Unlock()

	// History goes to the joiner only, before the roster event.
	messages, err := s.pipeline.History(context.Background(), roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room history")
		s.sendError("failed to load message history")
	} else if payload, err := protocol.PreviousMessages(messages); err == nil {
		s.client.enqueue(payload)
	}

	s.broadcastRoster(roomID)
}

func (s *Session) handleUsernameTaken(roomID, username string) {
	payload, err := protocol.UsernameTaken(s.presence.IsUsernameTaken(roomID, username))
	if err != nil {
		return
	}
	s.client.enqueue(payload)
}

func (s *Session) handleSend(roomID, body string) {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		s.sendError("join a room before sending messages")
		return
	}
	boundRoom, username := s.roomID, s.username
	s.mu.Unlock()

	if roomID != "" && roomID != boundRoom {
		s.sendError("not joined to that room")
		return
	}

	if _, err := s.pipeline.Send(context.Background(), boundRoom, s.client.ID(), username, body); err != nil {
		s.sendError(sendFailureReason(err))
	}
}

// handleLeave deregisters the binding and rebroadcasts the roster. Leaving
// without a binding is a silent no-op.
func (s *Session) handleLeave() {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		return
	}
	roomID := s.roomID
	s.state = StateLeft
	s.roomID = ""
	s.username = ""
	s.mu.Unlock()

	s.presence.Leave(roomID, s.client.ID())
	s.broadcastRoster(roomID)
}

// Disconnect runs transport-loss cleanup. The state transition under the
// mutex makes the deregistration effect at-most-once even when an explicit
// leave races with the connection dropping.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	wasJoined := s.state == StateJoined
	roomID := s.roomID
	s.state = StateDisconnected
	s.roomID = ""
	s.username = ""
	s.mu.Unlock()

	if wasJoined && roomID != "" {
		s.presence.Leave(roomID, s.client.ID())
		s.broadcastRoster(roomID)
	}
}

// broadcastRoster emits the room's current roster to its members. The roster
// is recomputed at emission time, so a delayed broadcast always carries the
// latest membership.
func (s *Session) broadcastRoster(roomID string) {
	payload, err := protocol.Users(s.presence.Roster(roomID))
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to encode roster")
		return
	}
	s.client.hub.BroadcastToRoom(roomID, payload)
}

func (s *Session) sendError(reason string) {
	payload, err := protocol.Error(reason)
	if err != nil {
		return
	}
	s.client.enqueue(payload)
}

func joinFailureReason(err error) string {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		return "username already taken in this room"
	case errors.Is(err, service.ErrValidation):
		return err.Error()
	default:
		return "failed to join room"
	}
}

func sendFailureReason(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return "message body is empty"
	case errors.Is(err, service.ErrStore):
		return "failed to save message"
	default:
		return "failed to send message"
	}
}
