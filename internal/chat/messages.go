package chat

import (
	"fmt"
	"log"
	"strings"

	"github.com/teris-io/shortid"

	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/types"
)

const shortidSeed = 2342

// MessageService owns message persistence and read-state accounting.
type MessageService struct {
	log   *log.Logger
	db    database.ChatRepository
	rooms *RoomService
	sid   *shortid.Shortid
}

func NewMessageService(logger *log.Logger, db database.ChatRepository, rooms *RoomService) (*MessageService, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, shortidSeed)
	if err != nil {
		return nil, fmt.Errorf("shortid generator: %w", err)
	}

	return &MessageService{
		log:   logger,
		db:    db,
		rooms: rooms,
		sid:   sid,
	}, nil
}

// Append persists a message with a generated id and a storage-assigned
// timestamp. Membership is the caller's responsibility; Append only
// rejects blank content.
func (s *MessageService) Append(roomId, senderId, content string) (types.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return types.MessageView{}, ErrEmptyContent
	}

	id, err := s.sid.Generate()
	if err != nil {
		return types.MessageView{}, fmt.Errorf("generate message id: %w", err)
	}

	saved, err := s.db.CreateMessage(database.Message{
		Id:        id,
		RoomId:    roomId,
		SenderId:  senderId,
		Content:   content,
		Timestamp: Now(),
	})
	if err != nil {
		return types.MessageView{}, fmt.Errorf("create message: %w", err)
	}

	return messageView(saved), nil
}

// History returns one page of a room's messages in ascending timestamp
// order. The caller must be a room participant.
func (s *MessageService) History(roomId, callerId string, page, size int) ([]types.MessageView, error) {
	if err := s.rooms.VerifyMembership(roomId, callerId); err != nil {
		return nil, err
	}

	messages, err := s.db.GetMessages(roomId, page, size)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	views := make([]types.MessageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView(msg)
	}

	return views, nil
}

// MarkRead flips every unread message from the other participant to
// read and returns the number of rows changed. Idempotent: a repeat
// call changes zero rows.
func (s *MessageService) MarkRead(roomId, callerId string) (int64, error) {
	if err := s.rooms.VerifyMembership(roomId, callerId); err != nil {
		return 0, err
	}

	return s.db.MarkMessagesRead(roomId, callerId)
}

func (s *MessageService) UnreadCount(roomId, viewerId string) (int64, error) {
	return s.db.CountUnreadMessages(roomId, viewerId)
}

// UnreadTotal is the derived global badge count: the sum of unread
// counts over every room the user participates in.
func (s *MessageService) UnreadTotal(userId string) (int64, error) {
	return s.db.CountUnreadMessagesForUser(userId)
}

func messageView(msg database.Message) types.MessageView {
	return types.MessageView{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		SenderId:  msg.SenderId,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		IsRead:    msg.IsRead,
	}
}
