package service

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sanket2004/text-sharing-app/internal/registry"
)

// Minimum lengths enforced before any registry interaction.
const (
	MinRoomIDLen   = 3
	MinUsernameLen = 3
)

// PresenceService orchestrates join, leave, and disconnect against the room
// registry. It holds no broadcast channel itself; callers (the connection
// sessions) consume its results and emit the roster events.
type PresenceService struct {
	registry *registry.Registry
}

// NewPresenceService creates a PresenceService.
func NewPresenceService(reg *registry.Registry) *PresenceService {
	if reg == nil {
		panic("registry cannot be nil for PresenceService")
	}
	return &PresenceService{registry: reg}
}

// Join validates the identifiers and registers the connection in the room.
// A failed join performs no mutation. On success the caller must deliver
// recent history to the joining connection and broadcast the updated roster.
func (s *PresenceService) Join(roomID, connID, username string) error {
	if len(roomID) < MinRoomIDLen {
		return fmt.Errorf("%w: room id must be at least %d characters", ErrValidation, MinRoomIDLen)
	}
	if len(username) < MinUsernameLen {
		return fmt.Errorf("%w: username must be at least %d characters", ErrValidation, MinUsernameLen)
	}

	if err := s.registry.Register(roomID, connID, username); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			return ErrUsernameTaken
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"conn_id":  connID,
		"username": username,
	}).Info("Connection joined room")
	return nil
}

// Leave removes the connection's entry from the room and reports whether an
// entry existed. Redundant calls are silent no-ops; the caller rebroadcasts
// the roster either way.
func (s *PresenceService) Leave(roomID, connID string) bool {
	removed := s.registry.Deregister(roomID, connID)
	if removed {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"conn_id": connID,
		}).Info("Connection left room")
	}
	return removed
}

// IsUsernameTaken answers the pre-flight uniqueness check without mutating
// any state.
func (s *PresenceService) IsUsernameTaken(roomID, username string) bool {
	return s.registry.IsUsernameTaken(roomID, username)
}

// Roster returns the room's current usernames in registration order.
func (s *PresenceService) Roster(roomID string) []string {
	return s.registry.Roster(roomID)
}
