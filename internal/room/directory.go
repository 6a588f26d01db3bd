package room

import (
	"log"
	"slices"
	"sync"

	"github.com/imap143/go-signaling/internal/database"
	"github.com/teris-io/shortid"
)

// Directory owns room membership state. Every read-modify-write sequence on
// a room (membership check, mutation, persistence) runs under a lock keyed
// by the room id, so concurrent joins and leaves on the same room serialize
// while distinct rooms proceed independently. The repository is the system
// of record for room existence; the directory keeps the live records cached
// in memory and writes through on every mutation.
type Directory struct {
	log *log.Logger
	db  database.SignalRepository

	// mu guards rooms and locks, never held across repository calls.
	mu    sync.Mutex
	rooms map[string]*database.Room
	locks map[string]*sync.Mutex

	newID func() (string, error)
}

func NewDirectory(logger *log.Logger, db database.SignalRepository) *Directory {
	return &Directory{
		log:   logger,
		db:    db,
		rooms: make(map[string]*database.Room),
		locks: make(map[string]*sync.Mutex),
		newID: shortid.Generate,
	}
}

// lockFor returns the mutex for roomID, creating it on first use. Locks are
// keyed by the stable room id rather than any in-memory instance, since the
// repository may hand back distinct structs for the same logical room.
func (d *Directory) lockFor(roomID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[roomID] = l
	}
	return l
}

// load returns the cached record for roomID, falling back to the
// repository. The caller must hold the room's lock.
func (d *Directory) load(roomID string) (*database.Room, error) {
	d.mu.Lock()
	r, ok := d.rooms[roomID]
	d.mu.Unlock()
	if ok {
		return r, nil
	}

	dbRoom, err := d.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.rooms[roomID] = &dbRoom
	d.mu.Unlock()
	return &dbRoom, nil
}

func (d *Directory) store(r database.Room) {
	d.mu.Lock()
	d.rooms[r.ID] = &r
	d.mu.Unlock()
}

func (d *Directory) evict(roomID string) {
	d.mu.Lock()
	delete(d.rooms, roomID)
	d.mu.Unlock()
}

// snapshot copies a room record so callers never alias internal state.
func snapshot(r *database.Room) database.Room {
	cp := *r
	cp.Participants = slices.Clone(r.Participants)
	cp.ActiveParticipants = slices.Clone(r.ActiveParticipants)
	return cp
}

// CreateRoom allocates a fresh id and persists a room whose participant sets
// both contain only the creator.
func (d *Directory) CreateRoom(name, createdBy string, createdAt int64) (database.Room, error) {
	id, err := d.newID()
	if err != nil {
		return database.Room{}, err
	}

	room := database.Room{
		ID:                 id,
		Name:               name,
		CreatedBy:          createdBy,
		CreatedAt:          createdAt,
		Participants:       []string{createdBy},
		ActiveParticipants: []string{createdBy},
	}

	saved, err := d.db.SaveRoom(room)
	if err != nil {
		return database.Room{}, err
	}

	d.store(saved)
	d.log.Printf("room %q created by %s", saved.ID, createdBy)
	return snapshot(&saved), nil
}

func (d *Directory) GetRoom(roomID string) (database.Room, error) {
	l := d.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	r, err := d.load(roomID)
	if err != nil {
		return database.Room{}, err
	}
	return snapshot(r), nil
}

// JoinRoom adds userID to the room's active participants and, if absent, to
// the all-time participant list. Joining a room the user is already active
// in is a no-op that returns the current record.
func (d *Directory) JoinRoom(roomID, userID string) (database.Room, error) {
	l := d.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	r, err := d.load(roomID)
	if err != nil {
		return database.Room{}, err
	}

	if slices.Contains(r.ActiveParticipants, userID) {
		return snapshot(r), nil
	}

	next := snapshot(r)
	next.ActiveParticipants = append(next.ActiveParticipants, userID)
	if !slices.Contains(next.Participants, userID) {
		next.Participants = append(next.Participants, userID)
	}

	saved, err := d.db.SaveRoom(next)
	if err != nil {
		return database.Room{}, err
	}

	d.store(saved)
	d.log.Printf("user %s joined room %q, participants: %v", userID, roomID, saved.ActiveParticipants)
	return snapshot(&saved), nil
}

// LeaveRoom removes userID from both participant sets. Removing an absent
// user is safe.
func (d *Directory) LeaveRoom(roomID, userID string) (database.Room, error) {
	l := d.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	r, err := d.load(roomID)
	if err != nil {
		return database.Room{}, err
	}

	next := snapshot(r)
	next.ActiveParticipants = remove(next.ActiveParticipants, userID)
	next.Participants = remove(next.Participants, userID)

	saved, err := d.db.SaveRoom(next)
	if err != nil {
		return database.Room{}, err
	}

	d.store(saved)
	d.log.Printf("user %s left room %q, remaining: %v", userID, roomID, saved.ActiveParticipants)
	return snapshot(&saved), nil
}

// RemoveFromActiveParticipants drops userID from the active set only. When
// the active set empties the room and its messages are deleted instead of
// persisted; this is the sole room-reclamation path. The returned flag
// reports whether the room was deleted.
func (d *Directory) RemoveFromActiveParticipants(roomID, userID string) (database.Room, bool, error) {
	l := d.lockFor(roomID)
	l.Lock()
	defer l.Unlock()

	r, err := d.load(roomID)
	if err != nil {
		return database.Room{}, false, err
	}

	next := snapshot(r)
	next.ActiveParticipants = remove(next.ActiveParticipants, userID)

	if len(next.ActiveParticipants) == 0 {
		if err := d.db.DeleteMessagesByRoom(roomID); err != nil {
			return database.Room{}, false, err
		}
		if err := d.db.DeleteRoom(roomID); err != nil {
			return database.Room{}, false, err
		}
		d.evict(roomID)
		d.log.Printf("empty room %q deleted", roomID)
		return database.Room{}, true, nil
	}

	saved, err := d.db.SaveRoom(next)
	if err != nil {
		return database.Room{}, false, err
	}

	d.store(saved)
	d.log.Printf("user %s removed from active participants of %q, remaining: %v",
		userID, roomID, saved.ActiveParticipants)
	return snapshot(&saved), false, nil
}

// Participants returns a copy of the room's currently-active participants.
func (d *Directory) Participants(roomID string) ([]string, error) {
	room, err := d.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return room.ActiveParticipants, nil
}

func (d *Directory) IsActiveParticipant(roomID, userID string) (bool, error) {
	room, err := d.GetRoom(roomID)
	if err != nil {
		return false, err
	}
	return slices.Contains(room.ActiveParticipants, userID), nil
}

// ListRoomsWithActiveParticipants returns every room with at least one
// active participant.
func (d *Directory) ListRoomsWithActiveParticipants() ([]database.Room, error) {
	rooms, err := d.db.ListRooms()
	if err != nil {
		return nil, err
	}

	var active []database.Room
	for _, r := range rooms {
		if len(r.ActiveParticipants) > 0 {
			active = append(active, r)
		}
	}
	return active, nil
}

// RoomsForUser returns rooms the user has ever joined.
func (d *Directory) RoomsForUser(userID string) ([]database.Room, error) {
	return d.db.RoomsByParticipant(userID)
}

// ActiveRoomsForUser returns rooms the user is currently active in.
func (d *Directory) ActiveRoomsForUser(userID string) ([]database.Room, error) {
	return d.db.RoomsByActiveParticipant(userID)
}

func remove(s []string, v string) []string {
	if i := slices.Index(s, v); i >= 0 {
		return slices.Delete(s, i, i+1)
	}
	return s
}
