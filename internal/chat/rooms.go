package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/types"
)

// RoomService resolves room identities and answers membership and
// listing queries for a user's conversations.
type RoomService struct {
	log *log.Logger
	db  database.ChatRepository
}

func NewRoomService(logger *log.Logger, db database.ChatRepository) *RoomService {
	return &RoomService{
		log: logger,
		db:  db,
	}
}

// RoomId derives the deterministic room key for a (listing, buyer)
// pair. Repeated first-contact requests always target the same room.
func RoomId(listingId, buyerId string) string {
	return fmt.Sprintf("listing_%s_buyer_%s", listingId, buyerId)
}

// Now is the timestamp source for rooms and messages.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// GetOrCreate returns the room for the (listing, buyer) pair, creating
// it if this is first contact. The seller is resolved from the listing
// owner, never supplied by the caller. Concurrent first contacts race
// on the room_id uniqueness constraint; the loser re-fetches the
// winner's row.
func (s *RoomService) GetOrCreate(listingId, buyerId string) (database.Room, error) {
	listing, err := s.db.GetListing(listingId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, ErrListingNotFound
		}
		return database.Room{}, fmt.Errorf("get listing: %w", err)
	}

	if listing.OwnerId == buyerId {
		return database.Room{}, ErrSelfConversation
	}

	roomId := RoomId(listingId, buyerId)

	room, err := s.db.GetRoomByRoomId(roomId)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.Room{}, fmt.Errorf("get room: %w", err)
	}

	room, err = s.db.CreateRoom(database.CreateRoomParams{
		RoomId:    roomId,
		ListingId: listingId,
		SellerId:  listing.OwnerId,
		BuyerId:   buyerId,
	})
	if errors.Is(err, database.ErrDuplicateRoom) {
		// lost the first-contact race, the other insert won
		return s.db.GetRoomByRoomId(roomId)
	}

	return room, err
}

func (s *RoomService) Get(roomId string) (database.Room, error) {
	room, err := s.db.GetRoomByRoomId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, ErrRoomNotFound
		}
		return database.Room{}, fmt.Errorf("get room: %w", err)
	}

	return room, nil
}

// VerifyMembership returns ErrRoomNotFound for a missing room and
// ErrNotParticipant for anyone who is neither the seller nor the buyer.
func (s *RoomService) VerifyMembership(roomId, userId string) error {
	room, err := s.Get(roomId)
	if err != nil {
		return err
	}

	if room.SellerId != userId && room.BuyerId != userId {
		return ErrNotParticipant
	}

	return nil
}

// Touch records room activity. Called once per persisted message.
func (s *RoomService) Touch(roomId string) error {
	return s.db.TouchRoomActivity(roomId, Now())
}

// Counterparty returns the participant on the other side of the room
// from userId.
func Counterparty(room database.Room, userId string) string {
	if room.SellerId == userId {
		return room.BuyerId
	}
	return room.SellerId
}

// Detail assembles the full view of one room for a participant.
func (s *RoomService) Detail(roomId, callerId string) (types.RoomDetail, error) {
	room, err := s.Get(roomId)
	if err != nil {
		return types.RoomDetail{}, err
	}

	if room.SellerId != callerId && room.BuyerId != callerId {
		return types.RoomDetail{}, ErrNotParticipant
	}

	listing, err := s.db.GetListing(room.ListingId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RoomDetail{}, ErrListingNotFound
		}
		return types.RoomDetail{}, fmt.Errorf("get listing: %w", err)
	}

	otherUser, err := s.db.GetUser(Counterparty(room, callerId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RoomDetail{}, ErrUserNotFound
		}
		return types.RoomDetail{}, fmt.Errorf("get user: %w", err)
	}

	return types.RoomDetail{
		RoomId:           room.RoomId,
		ListingId:        listing.Id,
		ListingTitle:     listing.Title,
		ListingPrice:     listing.Price,
		ListingThumbnail: listing.Thumbnail,
		ListingSold:      listing.Sold,
		OtherUserId:      otherUser.Id,
		OtherUsername:    otherUser.Username,
		OtherUserAvatar:  otherUser.AvatarUrl,
		CreatedAt:        room.CreatedAt,
		LastMessageAt:    nullableTime(room.LastMessageAt),
		IsSeller:         room.SellerId == callerId,
	}, nil
}

// List returns the caller's conversations, most recently active first.
// Rooms whose listing or counterparty can no longer be resolved are
// skipped rather than failing the whole list.
func (s *RoomService) List(callerId string) ([]types.RoomSummary, error) {
	rooms, err := s.db.RoomsForUser(callerId)
	if err != nil {
		return nil, fmt.Errorf("rooms for user: %w", err)
	}

	summaries := make([]types.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		listing, err := s.db.GetListing(room.ListingId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("get listing: %w", err)
		}

		otherUser, err := s.db.GetUser(Counterparty(room, callerId))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("get user: %w", err)
		}

		lastMessage := "No messages yet"
		last, err := s.db.GetLastMessage(room.RoomId)
		if err == nil {
			lastMessage = last.Content
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get last message: %w", err)
		}

		unread, err := s.db.CountUnreadMessages(room.RoomId, callerId)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}

		summaries = append(summaries, types.RoomSummary{
			RoomId:           room.RoomId,
			ListingId:        listing.Id,
			ListingTitle:     listing.Title,
			ListingThumbnail: listing.Thumbnail,
			ListingSold:      listing.Sold,
			OtherUserId:      otherUser.Id,
			OtherUsername:    otherUser.Username,
			OtherUserAvatar:  otherUser.AvatarUrl,
			LastMessage:      lastMessage,
			LastMessageAt:    nullableTime(room.LastMessageAt),
			UnreadCount:      unread,
			IsSeller:         room.SellerId == callerId,
		})
	}

	return summaries, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time
	return &ts
}
