package transport

import (
	"encoding/json"
	"testing"

	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/room"
	"github.com/imap143/go-signaling/internal/session"
	"github.com/imap143/go-signaling/internal/signaling"
	"github.com/imap143/go-signaling/internal/testutil"
	"github.com/imap143/go-signaling/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStats struct{}

func (nopStats) Incr(string)           {}
func (nopStats) Decr(string)           {}
func (nopStats) RegisterMetric(string) {}
func (nopStats) Run()                  {}

type testStack struct {
	hub       *Hub
	relay     *signaling.Relay
	registry  *session.Registry
	directory *room.Directory
	repo      *database.MemSignalRepository
}

func newTestStack(t *testing.T) *testStack {
	logger := testutil.TestLogger(t)
	repo := database.NewMemSignalRepository()
	registry := session.NewRegistry(logger)
	directory := room.NewDirectory(logger, repo)
	hub := NewHub(logger, nopStats{})
	relay := signaling.NewRelay(logger, registry, directory, hub, nopStats{})

	return &testStack{
		hub:       hub,
		relay:     relay,
		registry:  registry,
		directory: directory,
		repo:      repo,
	}
}

func (s *testStack) newClient(t *testing.T, userID, sessionID string) *Client {
	c := NewClient(nil, s.hub, s.relay, s.registry, s.repo, testutil.TestLogger(t), userID, sessionID)
	s.hub.Register(c)
	if userID != "" {
		s.registry.AddSession(sessionID, userID)
	}
	return c
}

// drain returns every message queued on the client's send buffer so far.
func drain(c *Client) [][]byte {
	var msgs [][]byte
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHubPublish(t *testing.T) {
	s := newTestStack(t)
	c := s.newClient(t, "alice", "sess-1")
	other := s.newClient(t, "bob", "sess-2")

	s.hub.Subscribe(c, signaling.RoomDest("r1"))
	s.hub.Publish(signaling.RoomDest("r1"), map[string]string{"hello": "world"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"hello":"world"}`, string(msgs[0]))

	assert.Empty(t, drain(other), "unsubscribed client must receive nothing")
}

func TestHubRegister_subscribesUserQueues(t *testing.T) {
	s := newTestStack(t)
	c := s.newClient(t, "alice", "sess-1")

	s.hub.Publish(signaling.SignalDest("alice"), map[string]string{"k": "signal"})
	s.hub.Publish(signaling.ParticipantsDest("alice"), map[string]string{"k": "participants"})
	s.hub.Publish(signaling.SignalDest("bob"), map[string]string{"k": "other"})

	msgs := drain(c)
	assert.Len(t, msgs, 2, "client receives only its own per-user queues")
}

func TestHubDeregister(t *testing.T) {
	s := newTestStack(t)
	c := s.newClient(t, "alice", "sess-1")
	s.hub.Subscribe(c, signaling.RoomDest("r1"))

	s.hub.Deregister(c)

	s.hub.Publish(signaling.RoomDest("r1"), "x")
	s.hub.Publish(signaling.SignalDest("alice"), "y")
	assert.Empty(t, drain(c))

	// deregistering twice is harmless
	s.hub.Deregister(c)
}

func TestQueueMessage_bufferFull(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}

	assert.True(t, c.queueMessage([]byte("one")))
	assert.False(t, c.queueMessage([]byte("two")), "full buffer must drop, not block")
}

func TestDispatch_join(t *testing.T) {
	s := newTestStack(t)

	rm, err := s.directory.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	alice := s.newClient(t, "alice", "sess-alice")
	s.hub.Subscribe(alice, signaling.RoomDest(rm.ID))
	drain(alice)

	bob := s.newClient(t, "bob", "sess-bob")
	bob.dispatch(signaling.Envelope{RoomID: rm.ID, SenderID: "bob", Type: types.MessageTypeJoin})

	got, err := s.directory.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.ActiveParticipants)

	// alice sees: participant update, JOIN signal from bob, room JOIN notice
	var sawUpdate, sawSignal, sawNotice bool
	for _, raw := range drain(alice) {
		var env signaling.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		switch {
		case env.Type == types.MessageTypeJoin && env.TargetID == "alice":
			sawSignal = true
		case env.Type == types.MessageTypeJoin:
			sawNotice = true
		default:
			var update signaling.ParticipantUpdate
			require.NoError(t, json.Unmarshal(raw, &update))
			assert.ElementsMatch(t, []string{"alice", "bob"}, update.Participants)
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate, "expected a participant-list update")
	assert.True(t, sawSignal, "expected a pairwise JOIN signal")
	assert.True(t, sawNotice, "expected the room JOIN notice")

	// bob's second tab joining again must not re-broadcast
	drain(alice)
	bob2 := s.newClient(t, "bob", "sess-bob-2")
	bob2.dispatch(signaling.Envelope{RoomID: rm.ID, SenderID: "bob", Type: types.MessageTypeJoin})
	assert.Empty(t, drain(alice), "duplicate join must not broadcast")
}

func TestDispatch_chatPersistsAndBroadcasts(t *testing.T) {
	s := newTestStack(t)

	rm, err := s.directory.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	alice := s.newClient(t, "alice", "sess-alice")
	s.hub.Subscribe(alice, signaling.RoomDest(rm.ID))

	alice.dispatch(signaling.Envelope{
		RoomID:     rm.ID,
		SenderID:   "alice",
		SenderName: "Alice",
		Type:       types.MessageTypeChat,
		Content:    "hello",
		Timestamp:  2000,
	})

	saved, err := s.repo.MessagesByRoom(rm.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "hello", saved[0].Content)

	msgs := drain(alice)
	require.Len(t, msgs, 1)
	var msg types.Message
	require.NoError(t, json.Unmarshal(msgs[0], &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, types.MessageTypeChat, msg.Type)
	assert.NotZero(t, msg.ID, "broadcast carries the persisted id")
}

func TestDispatch_offerForwarded(t *testing.T) {
	s := newTestStack(t)

	alice := s.newClient(t, "alice", "sess-alice")
	bob := s.newClient(t, "bob", "sess-bob")

	alice.dispatch(signaling.Envelope{
		RoomID:   "r1",
		SenderID: "alice",
		TargetID: "bob",
		Type:     types.MessageTypeOffer,
		Signal:   []byte(`{"sdp":"v=0"}`),
	})

	msgs := drain(bob)
	require.Len(t, msgs, 1)
	var env signaling.Envelope
	require.NoError(t, json.Unmarshal(msgs[0], &env))
	assert.Equal(t, types.MessageTypeOffer, env.Type)
	assert.Equal(t, "alice", env.SenderID)
	assert.Empty(t, drain(alice), "sender must not receive its own offer")
}

func TestDispatch_unidentifiedSession(t *testing.T) {
	s := newTestStack(t)

	rm, err := s.directory.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	anon := s.newClient(t, "", "sess-anon")
	anon.dispatch(signaling.Envelope{RoomID: rm.ID, Type: types.MessageTypeJoin})

	got, err := s.directory.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.ActiveParticipants,
		"an unidentified session must not mutate room state")
}

func TestCleanup(t *testing.T) {
	s := newTestStack(t)

	rm, err := s.directory.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)
	_, err = s.directory.JoinRoom(rm.ID, "bob")
	require.NoError(t, err)

	bob := s.newClient(t, "bob", "sess-bob")
	bob.cleanup()

	assert.False(t, s.registry.HasActiveSession("bob"))

	got, err := s.directory.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.ActiveParticipants, "bob",
		"disconnect of the last session must remove the user from the room")
}
