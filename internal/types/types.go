package types

import (
	"time"
)

type Room struct {
	Id            string     `json:"id"`
	RoomId        string     `json:"room_id"`
	ListingId     string     `json:"listing_id"`
	SellerId      string     `json:"seller_id"`
	BuyerId       string     `json:"buyer_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// RoomDetail is what a client needs to render an open conversation:
// the room, the listing it is about and the user on the other side.
type RoomDetail struct {
	RoomId           string     `json:"room_id"`
	ListingId        string     `json:"listing_id"`
	ListingTitle     string     `json:"listing_title"`
	ListingPrice     float64    `json:"listing_price"`
	ListingThumbnail string     `json:"listing_thumbnail"`
	ListingSold      bool       `json:"listing_sold"`
	OtherUserId      string     `json:"other_user_id"`
	OtherUsername    string     `json:"other_username"`
	OtherUserAvatar  string     `json:"other_user_avatar"`
	CreatedAt        time.Time  `json:"created_at"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	IsSeller         bool       `json:"is_seller"`
}

// RoomSummary is one row in a user's conversation list.
type RoomSummary struct {
	RoomId           string     `json:"room_id"`
	ListingId        string     `json:"listing_id"`
	ListingTitle     string     `json:"listing_title"`
	ListingThumbnail string     `json:"listing_thumbnail"`
	ListingSold      bool       `json:"listing_sold"`
	OtherUserId      string     `json:"other_user_id"`
	OtherUsername    string     `json:"other_username"`
	OtherUserAvatar  string     `json:"other_user_avatar"`
	LastMessage      string     `json:"last_message"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	UnreadCount      int64      `json:"unread_count"`
	IsSeller         bool       `json:"is_seller"`
}

type MessageView struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	SenderId  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Notification is the payload delivered on personal notification
// channels and, for errors, on room topics.
type Notification struct {
	Message string `json:"message"`
	RoomId  string `json:"room_id"`
}
