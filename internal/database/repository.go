package database

import "errors"

// ErrNotFound is returned when a room lookup misses. Callers match it with
// errors.Is.
var ErrNotFound = errors.New("not found")

type SignalRepository interface {
	Ping() error
	SaveRoom(room Room) (Room, error)
	GetRoom(id string) (Room, error)
	ListRooms() ([]Room, error)
	DeleteRoom(id string) error
	RoomsByParticipant(userID string) ([]Room, error)
	RoomsByActiveParticipant(userID string) ([]Room, error)
	SaveMessage(msg Message) (Message, error)
	MessagesByRoom(roomID string) ([]Message, error)
	DeleteMessagesByRoom(roomID string) error
}
