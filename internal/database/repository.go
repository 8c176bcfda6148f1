package database

import "time"

type ChatRepository interface {
	Ping() error
	GetRoomByRoomId(roomId string) (Room, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	RoomsForUser(userId string) ([]Room, error)
	TouchRoomActivity(roomId string, at time.Time) error
	CreateMessage(msg Message) (Message, error)
	GetMessages(roomId string, page, size int) ([]Message, error)
	GetLastMessage(roomId string) (Message, error)
	MarkMessagesRead(roomId, readerId string) (int64, error)
	CountUnreadMessages(roomId, viewerId string) (int64, error)
	CountUnreadMessagesForUser(userId string) (int64, error)
	GetListing(listingId string) (Listing, error)
	GetUser(userId string) (User, error)
}
