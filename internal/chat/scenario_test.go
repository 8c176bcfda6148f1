package chat

import (
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/testutil"
)

// memRepo is a full in-memory repository used for end-to-end conversation
// scenarios that exercise room creation, history, and read state together.
type memRepo struct {
	mu       sync.Mutex
	rooms    map[string]database.Room
	listings map[string]database.Listing
	users    map[string]database.User
	messages []database.Message
	seq      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		rooms:    make(map[string]database.Room),
		listings: make(map[string]database.Listing),
		users:    make(map[string]database.User),
	}
}

func (r *memRepo) Ping() error { return nil }

func (r *memRepo) GetRoomByRoomId(roomId string) (database.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	if !ok {
		return database.Room{}, sql.ErrNoRows
	}
	return room, nil
}

func (r *memRepo) CreateRoom(params database.CreateRoomParams) (database.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[params.RoomId]; ok {
		return database.Room{}, database.ErrDuplicateRoom
	}

	room := database.Room{
		Id:        params.RoomId,
		RoomId:    params.RoomId,
		ListingId: params.ListingId,
		SellerId:  params.SellerId,
		BuyerId:   params.BuyerId,
		CreatedAt: time.Now().UTC(),
	}
	r.rooms[params.RoomId] = room
	return room, nil
}

func (r *memRepo) RoomsForUser(userId string) ([]database.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []database.Room
	for _, room := range r.rooms {
		if room.SellerId == userId || room.BuyerId == userId {
			rooms = append(rooms, room)
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		switch {
		case a.LastMessageAt.Valid && b.LastMessageAt.Valid:
			return a.LastMessageAt.Time.After(b.LastMessageAt.Time)
		case a.LastMessageAt.Valid:
			return true
		case b.LastMessageAt.Valid:
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return rooms, nil
}

func (r *memRepo) TouchRoomActivity(roomId string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	if !ok {
		return sql.ErrNoRows
	}
	room.LastMessageAt = sql.NullTime{Time: at, Valid: true}
	r.rooms[roomId] = room
	return nil
}

func (r *memRepo) CreateMessage(msg database.Message) (database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	msg.Seq = r.seq
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *memRepo) GetMessages(roomId string, page, size int) ([]database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var msgs []database.Message
	for _, msg := range r.messages {
		if msg.RoomId == roomId {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	offset := page * size
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + size
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end], nil
}

func (r *memRepo) GetLastMessage(roomId string) (database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last *database.Message
	for i := range r.messages {
		msg := &r.messages[i]
		if msg.RoomId != roomId {
			continue
		}
		if last == nil || msg.Timestamp.After(last.Timestamp) ||
			(msg.Timestamp.Equal(last.Timestamp) && msg.Seq > last.Seq) {
			last = msg
		}
	}
	if last == nil {
		return database.Message{}, sql.ErrNoRows
	}
	return *last, nil
}

func (r *memRepo) MarkMessagesRead(roomId, readerId string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for i, msg := range r.messages {
		if msg.RoomId == roomId && msg.SenderId != readerId && !msg.IsRead {
			r.messages[i].IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (r *memRepo) CountUnreadMessages(roomId, viewerId string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, msg := range r.messages {
		if msg.RoomId == roomId && msg.SenderId != viewerId && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) CountUnreadMessagesForUser(userId string) (int64, error) {
	r.mu.Lock()
	rooms := make([]database.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.SellerId == userId || room.BuyerId == userId {
			rooms = append(rooms, room)
		}
	}
	r.mu.Unlock()

	var total int64
	for _, room := range rooms {
		count, err := r.CountUnreadMessages(room.RoomId, userId)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (r *memRepo) GetListing(listingId string) (database.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingId]
	if !ok {
		return database.Listing{}, sql.ErrNoRows
	}
	return listing, nil
}

func (r *memRepo) GetUser(userId string) (database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userId]
	if !ok {
		return database.User{}, sql.ErrNoRows
	}
	return user, nil
}

func TestConversationScenario(t *testing.T) {
	repo := newMemRepo()
	repo.listings[testListingId] = testListing()
	repo.users[testSellerId] = database.User{Id: testSellerId, Username: "sam"}
	repo.users[testBuyerId] = database.User{Id: testBuyerId, Username: "billie"}

	logger := testutil.TestLogger(t)
	rooms := NewRoomService(logger, repo)
	messages, err := NewMessageService(logger, repo, rooms)
	require.NoError(t, err)

	// buyer opens the conversation
	room, err := rooms.GetOrCreate(testListingId, testBuyerId)
	require.NoError(t, err)
	assert.Equal(t, RoomId(testListingId, testBuyerId), room.RoomId)
	assert.Equal(t, testSellerId, room.SellerId)
	assert.Equal(t, testBuyerId, room.BuyerId)

	// a second init resolves to the same room
	again, err := rooms.GetOrCreate(testListingId, testBuyerId)
	require.NoError(t, err)
	assert.Equal(t, room.RoomId, again.RoomId)

	send := func(senderId, content string) {
		_, err := messages.Append(room.RoomId, senderId, content)
		require.NoError(t, err)
		require.NoError(t, rooms.Touch(room.RoomId))
	}

	send(testBuyerId, "hi")
	send(testSellerId, "hello")
	send(testBuyerId, "still there?")

	history, err := messages.History(room.RoomId, testSellerId, 0, 50)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, "still there?", history[2].Content)

	unreadSeller, err := messages.UnreadCount(room.RoomId, testSellerId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unreadSeller)

	// the global badge agrees with the per-room sum
	total, err := messages.UnreadTotal(testSellerId)
	require.NoError(t, err)
	assert.Equal(t, unreadSeller, total)

	// seller opens the room
	changed, err := messages.MarkRead(room.RoomId, testSellerId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	unreadSeller, err = messages.UnreadCount(room.RoomId, testSellerId)
	require.NoError(t, err)
	assert.Zero(t, unreadSeller)

	unreadBuyer, err := messages.UnreadCount(room.RoomId, testBuyerId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unreadBuyer)

	// second markRead changes nothing
	changed, err = messages.MarkRead(room.RoomId, testSellerId)
	require.NoError(t, err)
	assert.Zero(t, changed)

	// the room list reflects the latest activity
	summaries, err := rooms.List(testSellerId)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "still there?", summaries[0].LastMessage)
	assert.True(t, summaries[0].IsSeller)
	assert.NotNil(t, summaries[0].LastMessageAt)
}
