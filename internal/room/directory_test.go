package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T) (*Directory, *database.MemSignalRepository) {
	repo := database.NewMemSignalRepository()
	return NewDirectory(testutil.TestLogger(t), repo), repo
}

func TestCreateRoom(t *testing.T) {
	d, repo := newTestDirectory(t)

	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	assert.NotEmpty(t, room.ID, "expected a generated room id")
	assert.Equal(t, "standup", room.Name)
	assert.Equal(t, "alice", room.CreatedBy)
	assert.Equal(t, []string{"alice"}, room.Participants)
	assert.Equal(t, []string{"alice"}, room.ActiveParticipants)

	persisted, err := repo.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, room, persisted, "expected room to be persisted")
}

func TestGetRoom_notFound(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, err := d.GetRoom("missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestJoinRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	got, err := d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.ActiveParticipants)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.Participants)

	// joining again changes nothing
	again, err := d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, got.ActiveParticipants, again.ActiveParticipants,
		"second join must not change active participants")

	// active participants are always a subset of all-time participants
	for _, p := range again.ActiveParticipants {
		assert.Contains(t, again.Participants, p)
	}
}

func TestJoinRoom_rejoinAfterLeave(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	_, err = d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	_, _, err = d.RemoveFromActiveParticipants(room.ID, "bob")
	require.NoError(t, err)

	got, err := d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.ActiveParticipants)
	// bob never left the all-time list, so it must not contain duplicates
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.Participants)
}

func TestJoinRoom_notFound(t *testing.T) {
	d, _ := newTestDirectory(t)

	_, err := d.JoinRoom("missing", "bob")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestLeaveRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)
	_, err = d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)

	got, err := d.LeaveRoom(room.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.ActiveParticipants)
	assert.Equal(t, []string{"bob"}, got.Participants)

	// leaving when absent is safe
	got, err = d.LeaveRoom(room.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.ActiveParticipants)
}

func TestRemoveFromActiveParticipants(t *testing.T) {
	t.Run("remaining members keep the room alive", func(t *testing.T) {
		d, _ := newTestDirectory(t)
		room, err := d.CreateRoom("standup", "alice", 1000)
		require.NoError(t, err)
		_, err = d.JoinRoom(room.ID, "bob")
		require.NoError(t, err)

		got, deleted, err := d.RemoveFromActiveParticipants(room.ID, "alice")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, []string{"bob"}, got.ActiveParticipants)
		// the all-time list is untouched
		assert.ElementsMatch(t, []string{"alice", "bob"}, got.Participants)
	})

	t.Run("last member empties and deletes the room", func(t *testing.T) {
		d, repo := newTestDirectory(t)
		room, err := d.CreateRoom("standup", "alice", 1000)
		require.NoError(t, err)
		_, err = repo.SaveMessage(database.Message{RoomID: room.ID, SenderID: "alice", Content: "hi"})
		require.NoError(t, err)

		_, deleted, err := d.RemoveFromActiveParticipants(room.ID, "alice")
		require.NoError(t, err)
		assert.True(t, deleted, "expected room to be reclaimed")

		_, err = d.GetRoom(room.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)

		msgs, err := repo.MessagesByRoom(room.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs, "expected room messages to be purged")
	})
}

func TestListRoomsWithActiveParticipants(t *testing.T) {
	d, repo := newTestDirectory(t)

	_, err := d.CreateRoom("active", "alice", 1000)
	require.NoError(t, err)

	// a drained room straight in the repository
	_, err = repo.SaveRoom(database.Room{
		ID:           "empty-room",
		Name:         "empty",
		CreatedBy:    "bob",
		Participants: []string{"bob"},
	})
	require.NoError(t, err)

	rooms, err := d.ListRoomsWithActiveParticipants()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "active", rooms[0].Name)
}

func TestParticipants_snapshotIsACopy(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)

	participants, err := d.Participants(room.ID)
	require.NoError(t, err)
	participants[0] = "mallory"

	got, err := d.Participants(room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got, "caller mutation must not leak into directory state")
}

func TestJoinRoom_concurrent(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "creator", 1000)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.JoinRoom(room.ID, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := d.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Len(t, got.ActiveParticipants, n+1, "no join may be lost under concurrency")
}

func TestRoomsForUser(t *testing.T) {
	d, _ := newTestDirectory(t)
	room, err := d.CreateRoom("standup", "alice", 1000)
	require.NoError(t, err)
	_, err = d.JoinRoom(room.ID, "bob")
	require.NoError(t, err)
	_, _, err = d.RemoveFromActiveParticipants(room.ID, "bob")
	require.NoError(t, err)

	all, err := d.RoomsForUser("bob")
	require.NoError(t, err)
	assert.Len(t, all, 1, "bob remains an all-time participant")

	active, err := d.ActiveRoomsForUser("bob")
	require.NoError(t, err)
	assert.Empty(t, active, "bob is no longer active")
}
