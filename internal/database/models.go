package database

import (
	"database/sql"
	"time"
)

type Room struct {
	Id            string
	RoomId        string
	ListingId     string
	SellerId      string
	BuyerId       string
	CreatedAt     time.Time
	LastMessageAt sql.NullTime
}

type Message struct {
	Seq       int64
	Id        string
	RoomId    string
	SenderId  string
	Content   string
	Timestamp time.Time
	IsRead    bool
}

// Listing and User are rows owned by the marketplace's catalog and
// identity services. This module only ever reads them.
type Listing struct {
	Id        string
	OwnerId   string
	Title     string
	Price     float64
	Thumbnail string
	Sold      bool
}

type User struct {
	Id        string
	Username  string
	AvatarUrl string
}

type CreateRoomParams struct {
	RoomId    string
	ListingId string
	SellerId  string
	BuyerId   string
}
