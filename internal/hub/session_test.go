package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Sanket2004/text-sharing-app/internal/domain"
	"github.com/Sanket2004/text-sharing-app/internal/protocol"
	"github.com/Sanket2004/text-sharing-app/internal/registry"
	"github.com/Sanket2004/text-sharing-app/internal/repository/mocks"
	"github.com/Sanket2004/text-sharing-app/internal/service"
)

// testRig wires a hub, services, and a mock store without any real sockets.
// Clients are created with a nil conn and never start their pumps; events are
// pushed straight into the session and read back from the send channel.
type testRig struct {
	hub      *Hub
	presence *service.PresenceService
	pipeline *service.MessageService
	repo     *mocks.MessageRepository
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	reg := registry.New()
	h := NewHub(reg)
	repo := new(mocks.MessageRepository)
	presence := service.NewPresenceService(reg)
	pipeline := service.NewMessageService(repo, h, 0)
	return &testRig{hub: h, presence: presence, pipeline: pipeline, repo: repo}
}

func (r *testRig) newClient() *Client {
	return NewClient(r.hub, nil, r.presence, r.pipeline)
}

func event(t *testing.T, name string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(protocol.Envelope{Event: name, Data: raw})
	require.NoError(t, err)
	return payload
}

// drain decodes every event currently queued for the client.
func drain(t *testing.T, c *Client) []protocol.Envelope {
	t.Helper()
	var events []protocol.Envelope
	for {
		select {
		case raw := <-c.send:
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			events = append(events, env)
		default:
			return events
		}
	}
}

func eventNames(events []protocol.Envelope) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}

func decodeUsers(t *testing.T, env protocol.Envelope) []string {
	t.Helper()
	require.Equal(t, protocol.EventUsers, env.Event)
	var users []string
	require.NoError(t, json.Unmarshal(env.Data, &users))
	return users
}

func expectEmptyHistory(r *testRig) {
	r.repo.On("RecentByRoom", mock.Anything, mock.Anything, service.DefaultHistoryLimit).
		Return([]domain.Message{}, nil)
}

func TestJoinDeliversHistoryThenRoster(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	c := rig.newClient()

	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))

	events := drain(t, c)
	require.Equal(t, []string{protocol.EventPreviousMessages, protocol.EventUsers}, eventNames(events))
	assert.Equal(t, []string{"alice"}, decodeUsers(t, events[1]))
	assert.Equal(t, StateJoined, c.Session().State())
}

func TestJoinRejectedForDuplicateUsername(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)

	c1 := rig.newClient()
	c1.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "bob"}))
	drain(t, c1)

	c2 := rig.newClient()
	c2.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "bob"}))

	events := drain(t, c2)
	require.Equal(t, []string{protocol.EventError}, eventNames(events))
	assert.Equal(t, StateUnbound, c2.Session().State())
	// The rejected join must not reach the existing member.
	assert.Empty(t, drain(t, c1))
	assert.Equal(t, []string{"bob"}, rig.presence.Roster("room1"))
}

func TestJoinRejectedForShortIdentifiers(t *testing.T) {
	rig := newTestRig(t)
	c := rig.newClient()

	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "ab", Username: "alice"}))
	events := drain(t, c)
	require.Equal(t, []string{protocol.EventError}, eventNames(events))
	assert.Equal(t, StateUnbound, c.Session().State())

	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "al"}))
	events = drain(t, c)
	require.Equal(t, []string{protocol.EventError}, eventNames(events))
	assert.Empty(t, rig.presence.Roster("room1"))
}

func TestSecondJoinWhileJoinedRejected(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	c := rig.newClient()

	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	drain(t, c)

	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room2", Username: "alice"}))
	events := drain(t, c)
	require.Equal(t, []string{protocol.EventError}, eventNames(events))

	room, _ := c.Session().Room()
	assert.Equal(t, "room1", room)
	assert.Empty(t, rig.presence.Roster("room2"))
}

func TestLeaveThenRejoinSameRoom(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	c := rig.newClient()
	session := c.Session()

	session.HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	drain(t, c)

	session.HandleEvent(event(t, protocol.EventLeaveRoom, "room1"))
	events := drain(t, c)
	// The leaver is no longer registered, so the empty-roster broadcast does
	// not reach it.
	assert.Empty(t, events)
	assert.Equal(t, StateLeft, session.State())
	assert.Empty(t, rig.presence.Roster("room1"))

	// A fresh join on the same connection is allowed, with a new username.
	session.HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice2"}))
	events = drain(t, c)
	require.Equal(t, []string{protocol.EventPreviousMessages, protocol.EventUsers}, eventNames(events))
	assert.Equal(t, []string{"alice2"}, decodeUsers(t, events[1]))
}

func TestRedundantLeaveAndDisconnectAreNoOps(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	c := rig.newClient()
	session := c.Session()

	session.HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	drain(t, c)

	session.HandleEvent(event(t, protocol.EventLeaveRoom, "room1"))
	session.HandleEvent(event(t, protocol.EventLeaveRoom, "room1"))
	session.Disconnect()
	session.Disconnect()

	assert.Empty(t, drain(t, c), "redundant calls must not raise errors")
	assert.Empty(t, rig.presence.Roster("room1"))
}

func TestSendBroadcastsToWholeRoomIncludingSender(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	rig.repo.On("Append", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 1
		}).Return(nil).Once()

	c1 := rig.newClient()
	c1.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	c2 := rig.newClient()
	c2.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "bob"}))
	drain(t, c1)
	drain(t, c2)

	c1.Session().HandleEvent(event(t, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: "room1", Message: "hi"}))

	for _, c := range []*Client{c1, c2} {
		events := drain(t, c)
		require.Equal(t, []string{protocol.EventReceiveMessage}, eventNames(events))
		var msg domain.Message
		require.NoError(t, json.Unmarshal(events[0].Data, &msg))
		assert.Equal(t, "hi", msg.Body)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, c1.ID(), msg.SenderID)
	}
	rig.repo.AssertExpectations(t)
}

func TestSendRequiresJoinedState(t *testing.T) {
	rig := newTestRig(t)
	c := rig.newClient()

	c.Session().HandleEvent(event(t, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: "room1", Message: "hi"}))
	events := drain(t, c)
	require.Equal(t, []string{protocol.EventError}, eventNames(events))
	rig.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestSendEmptyBodyRejected(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)
	c := rig.newClient()
	c.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	drain(t, c)

	for _, body := range []string{"", "   "} {
		c.Session().HandleEvent(event(t, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: "room1", Message: body}))
		events := drain(t, c)
		require.Equal(t, []string{protocol.EventError}, eventNames(events))
	}
	rig.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestUsernameTakenPreCheck(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)

	c1 := rig.newClient()
	c1.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	drain(t, c1)

	c2 := rig.newClient()
	c2.Session().HandleEvent(event(t, protocol.EventUsernameTaken, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))

	events := drain(t, c2)
	require.Equal(t, []string{protocol.EventUsernameTaken}, eventNames(events))
	var answer protocol.UsernameTakenPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &answer))
	assert.True(t, answer.Taken)

	// The pre-check must not have registered anything.
	assert.Equal(t, StateUnbound, c2.Session().State())
	assert.Equal(t, []string{"alice"}, rig.presence.Roster("room1"))
}

func TestDisconnectDeregistersAndRebroadcasts(t *testing.T) {
	rig := newTestRig(t)
	expectEmptyHistory(rig)

	c1 := rig.newClient()
	c1.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"}))
	c2 := rig.newClient()
	c2.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "bob"}))
	drain(t, c1)
	drain(t, c2)

	c1.Session().Disconnect()
	rig.hub.remove(c1)

	events := drain(t, c2)
	require.Equal(t, []string{protocol.EventUsers}, eventNames(events))
	assert.Equal(t, []string{"bob"}, decodeUsers(t, events[0]))
	assert.Equal(t, StateDisconnected, c1.Session().State())
}

// Full walk through the observable scenario: join, message, rejected
// duplicate join, second member with history replay, disconnect.
func TestRoomLifecycleScenario(t *testing.T) {
	rig := newTestRig(t)

	var saved []domain.Message
	rig.repo.On("Append", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			msg := args.Get(1).(*domain.Message)
			msg.ID = uint(len(saved) + 1)
			saved = append(saved, *msg)
		}).Return(nil)
	// First joiner sees an empty room, the second finds bob's message.
	rig.repo.On("RecentByRoom", mock.Anything, "roomx", service.DefaultHistoryLimit).
		Return([]domain.Message{}, nil).Once()
	rig.repo.On("RecentByRoom", mock.Anything, "roomx", service.DefaultHistoryLimit).
		Return([]domain.Message{{ID: 1, RoomID: "roomx", Username: "bob", Body: "hello"}}, nil).Once()

	c1 := rig.newClient()
	c1.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "roomx", Username: "bob"}))
	events := drain(t, c1)
	require.Equal(t, []string{protocol.EventPreviousMessages, protocol.EventUsers}, eventNames(events))
	assert.Equal(t, []string{"bob"}, decodeUsers(t, events[1]))

	c1.Session().HandleEvent(event(t, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: "roomx", Message: "hello"}))
	events = drain(t, c1)
	require.Equal(t, []string{protocol.EventReceiveMessage}, eventNames(events))

	// Duplicate username rejected, roster unchanged.
	c2 := rig.newClient()
	c2.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "roomx", Username: "bob"}))
	require.Equal(t, []string{protocol.EventError}, eventNames(drain(t, c2)))
	assert.Equal(t, []string{"bob"}, rig.presence.Roster("roomx"))

	// Fresh username succeeds and both members are present.
	c2.Session().HandleEvent(event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "roomx", Username: "carol"}))
	events = drain(t, c2)
	require.Equal(t, []string{protocol.EventPreviousMessages, protocol.EventUsers}, eventNames(events))
	var history []domain.Message
	require.NoError(t, json.Unmarshal(events[0].Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Body)
	assert.ElementsMatch(t, []string{"bob", "carol"}, decodeUsers(t, events[1]))
	drain(t, c1)

	// Disconnect shrinks the roster for the remaining member.
	c1.Session().Disconnect()
	rig.hub.remove(c1)
	events = drain(t, c2)
	require.Equal(t, []string{protocol.EventUsers}, eventNames(events))
	assert.Equal(t, []string{"carol"}, decodeUsers(t, events[0]))

	require.Len(t, saved, 1)
	assert.Equal(t, "hello", saved[0].Body)
	assert.Equal(t, "bob", saved[0].Username)
}

// A disconnect racing a join must never leave a registry entry behind:
// whichever side finishes second observes the other and cleans up.
func TestJoinDisconnectRaceLeavesNoOrphan(t *testing.T) {
	for i := 0; i < 50; i++ {
		rig := newTestRig(t)
		expectEmptyHistory(rig)
		c := rig.newClient()
		joinEvt := event(t, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: "room1", Username: "alice"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Session().HandleEvent(joinEvt)
		}()
		go func() {
			defer wg.Done()
			c.Session().Disconnect()
		}()
		wg.Wait()

		assert.Empty(t, rig.presence.Roster("room1"))
		assert.Equal(t, StateDisconnected, c.Session().State())
	}
}
