package database

import (
	"time"
)

func (db *PgChatRepository) GetRoomByRoomId(roomId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, listing_id, seller_id, buyer_id, created_at, last_message_at "+
			"FROM chat_rooms WHERE room_id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.RoomId,
		&room.ListingId,
		&room.SellerId,
		&room.BuyerId,
		&room.CreatedAt,
		&room.LastMessageAt,
	)

	return room, err
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_rooms (room_id, listing_id, seller_id, buyer_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, room_id, listing_id, seller_id, buyer_id, created_at, last_message_at",
		params.RoomId,
		params.ListingId,
		params.SellerId,
		params.BuyerId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.RoomId,
		&room.ListingId,
		&room.SellerId,
		&room.BuyerId,
		&room.CreatedAt,
		&room.LastMessageAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Room{}, ErrDuplicateRoom
		}
		return Room{}, err
	}

	return room, nil
}

// RoomsForUser returns every room the user participates in, most
// recently active first. Rooms with no messages yet sort after all
// active rooms, newest created first.
func (db *PgChatRepository) RoomsForUser(userId string) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, listing_id, seller_id, buyer_id, created_at, last_message_at "+
			"FROM chat_rooms WHERE seller_id = $1 OR buyer_id = $1 "+
			"ORDER BY last_message_at DESC NULLS LAST, created_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.RoomId,
			&room.ListingId,
			&room.SellerId,
			&room.BuyerId,
			&room.CreatedAt,
			&room.LastMessageAt,
		); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) TouchRoomActivity(roomId string, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE chat_rooms SET last_message_at = $2 WHERE room_id = $1",
		roomId,
		at,
	)

	return err
}

func (db *PgChatRepository) CreateMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (id, room_id, sender_id, content, timestamp, is_read) "+
			"VALUES ($1, $2, $3, $4, $5, FALSE) "+
			"RETURNING seq, id, room_id, sender_id, content, timestamp, is_read",
		msg.Id,
		msg.RoomId,
		msg.SenderId,
		msg.Content,
		msg.Timestamp,
	)

	var saved Message
	err := res.Scan(
		&saved.Seq,
		&saved.Id,
		&saved.RoomId,
		&saved.SenderId,
		&saved.Content,
		&saved.Timestamp,
		&saved.IsRead,
	)

	return saved, err
}

// GetMessages returns one page of a room's history in ascending
// timestamp order, ties broken by insertion order.
func (db *PgChatRepository) GetMessages(roomId string, page, size int) ([]Message, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 50
	}

	rows, err := db.conn.Query(
		"SELECT seq, id, room_id, sender_id, content, timestamp, is_read FROM messages "+
			"WHERE room_id = $1 ORDER BY timestamp ASC, seq ASC OFFSET $2 LIMIT $3",
		roomId,
		page*size,
		size,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, size)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Seq,
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Content,
			&msg.Timestamp,
			&msg.IsRead,
		); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) GetLastMessage(roomId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT seq, id, room_id, sender_id, content, timestamp, is_read FROM messages "+
			"WHERE room_id = $1 ORDER BY timestamp DESC, seq DESC LIMIT 1",
		roomId,
	)

	var msg Message
	err := row.Scan(
		&msg.Seq,
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.Timestamp,
		&msg.IsRead,
	)

	return msg, err
}

func (db *PgChatRepository) MarkMessagesRead(roomId, readerId string) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE "+
			"WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE",
		roomId,
		readerId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgChatRepository) CountUnreadMessages(roomId, viewerId string) (int64, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages "+
			"WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE",
		roomId,
		viewerId,
	)

	var count int64
	err := row.Scan(&count)

	return count, err
}

func (db *PgChatRepository) CountUnreadMessagesForUser(userId string) (int64, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m "+
			"JOIN chat_rooms r ON m.room_id = r.room_id "+
			"WHERE m.sender_id <> $1 AND m.is_read = FALSE "+
			"AND (r.seller_id = $1 OR r.buyer_id = $1)",
		userId,
	)

	var count int64
	err := row.Scan(&count)

	return count, err
}

func (db *PgChatRepository) GetListing(listingId string) (Listing, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, title, price, picture1_url, sold FROM listings "+
			"WHERE id = $1 LIMIT 1",
		listingId,
	)

	var listing Listing
	err := row.Scan(
		&listing.Id,
		&listing.OwnerId,
		&listing.Title,
		&listing.Price,
		&listing.Thumbnail,
		&listing.Sold,
	)

	return listing, err
}

func (db *PgChatRepository) GetUser(userId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, avatar_url FROM users WHERE id = $1 LIMIT 1",
		userId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.AvatarUrl,
	)

	return user, err
}
