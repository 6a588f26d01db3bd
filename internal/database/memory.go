package database

import (
	"fmt"
	"slices"
	"sync"
)

// MemSignalRepository is an in-memory SignalRepository. It backs tests and
// local development where no Postgres instance is available.
type MemSignalRepository struct {
	mu       sync.Mutex
	rooms    map[string]Room
	messages map[string][]Message
	nextID   int64
}

func NewMemSignalRepository() *MemSignalRepository {
	return &MemSignalRepository{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
	}
}

func (m *MemSignalRepository) Ping() error { return nil }

func (m *MemSignalRepository) SaveRoom(room Room) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room.Participants = slices.Clone(room.Participants)
	room.ActiveParticipants = slices.Clone(room.ActiveParticipants)
	m.rooms[room.ID] = room
	return room, nil
}

func (m *MemSignalRepository) GetRoom(id string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return Room{}, fmt.Errorf("room %q: %w", id, ErrNotFound)
	}
	return copyRoom(r), nil
}

func (m *MemSignalRepository) ListRooms() ([]Room, error) {
	return m.roomsWhere(func(Room) bool { return true }), nil
}

func (m *MemSignalRepository) DeleteRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, id)
	return nil
}

func (m *MemSignalRepository) RoomsByParticipant(userID string) ([]Room, error) {
	return m.roomsWhere(func(r Room) bool {
		return slices.Contains(r.Participants, userID)
	}), nil
}

func (m *MemSignalRepository) RoomsByActiveParticipant(userID string) ([]Room, error) {
	return m.roomsWhere(func(r Room) bool {
		return slices.Contains(r.ActiveParticipants, userID)
	}), nil
}

func (m *MemSignalRepository) SaveMessage(msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	msg.ID = m.nextID
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], msg)
	return msg, nil
}

func (m *MemSignalRepository) MessagesByRoom(roomID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.messages[roomID]), nil
}

func (m *MemSignalRepository) DeleteMessagesByRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, roomID)
	return nil
}

func (m *MemSignalRepository) roomsWhere(keep func(Room) bool) []Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rooms []Room
	for _, r := range m.rooms {
		if keep(r) {
			rooms = append(rooms, copyRoom(r))
		}
	}
	return rooms
}

func copyRoom(r Room) Room {
	r.Participants = slices.Clone(r.Participants)
	r.ActiveParticipants = slices.Clone(r.ActiveParticipants)
	return r
}
