package chat

import "errors"

var (
	ErrListingNotFound  = errors.New("listing not found")
	ErrRoomNotFound     = errors.New("chat room not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotParticipant   = errors.New("not authorized to access this chat")
	ErrSelfConversation = errors.New("seller cannot message themselves")
	ErrEmptyContent     = errors.New("message content cannot be empty")
)
