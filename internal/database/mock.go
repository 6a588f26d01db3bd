package database

import (
	"github.com/stretchr/testify/mock"
)

type MockSignalRepository struct {
	mock.Mock
}

func (m *MockSignalRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSignalRepository) SaveRoom(room Room) (Room, error) {
	args := m.Called(room)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSignalRepository) GetRoom(id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockSignalRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockSignalRepository) DeleteRoom(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockSignalRepository) RoomsByParticipant(userID string) ([]Room, error) {
	args := m.Called(userID)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockSignalRepository) RoomsByActiveParticipant(userID string) ([]Room, error) {
	args := m.Called(userID)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockSignalRepository) SaveMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSignalRepository) MessagesByRoom(roomID string) ([]Message, error) {
	args := m.Called(roomID)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockSignalRepository) DeleteMessagesByRoom(roomID string) error {
	args := m.Called(roomID)
	return args.Error(0)
}
