package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetRoomByRoomId(roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) RoomsForUser(userId string) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) TouchRoomActivity(roomId string, at time.Time) error {
	args := m.Called(roomId, at)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(roomId string, page, size int) ([]Message, error) {
	args := m.Called(roomId, page, size)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetLastMessage(roomId string) (Message, error) {
	args := m.Called(roomId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessagesRead(roomId, readerId string) (int64, error) {
	args := m.Called(roomId, readerId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockChatRepository) CountUnreadMessages(roomId, viewerId string) (int64, error) {
	args := m.Called(roomId, viewerId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockChatRepository) CountUnreadMessagesForUser(userId string) (int64, error) {
	args := m.Called(userId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockChatRepository) GetListing(listingId string) (Listing, error) {
	args := m.Called(listingId)
	return args.Get(0).(Listing), args.Error(1)
}
func (m *MockChatRepository) GetUser(userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
