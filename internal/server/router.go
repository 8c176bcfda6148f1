package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/pondapp/chat-server/internal/chat"
	"github.com/pondapp/chat-server/internal/pubsub"
	"github.com/pondapp/chat-server/internal/stats"
	"github.com/pondapp/chat-server/internal/types"
)

// Router handles every inbound send: verify membership, persist,
// touch room activity, broadcast to the room topic and notify the
// counterparty's personal channel.
type Router struct {
	log      *log.Logger
	rooms    *chat.RoomService
	messages *chat.MessageService
	registry pubsub.Registry
	stats    stats.StatsProvider

	// locksMu guards locks; each room lock serializes
	// persist-then-publish so room delivery order equals persist order.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRouter(logger *log.Logger, rooms *chat.RoomService, messages *chat.MessageService, registry pubsub.Registry, sp stats.StatsProvider) *Router {
	return &Router{
		log:      logger,
		rooms:    rooms,
		messages: messages,
		registry: registry,
		stats:    sp,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (rt *Router) roomLock(roomId string) *sync.Mutex {
	rt.locksMu.Lock()
	defer rt.locksMu.Unlock()

	lock, ok := rt.locks[roomId]
	if !ok {
		lock = &sync.Mutex{}
		rt.locks[roomId] = lock
	}

	return lock
}

// Route processes one send from a bound session. Failures before the
// message is durable are reported in-band on the room topic so the
// sender's connection stays usable; the returned error mirrors what
// was reported.
func (rt *Router) Route(ctx context.Context, senderId, roomId, content string) error {
	room, err := rt.rooms.Get(roomId)
	if err != nil {
		rt.notifyError(ctx, roomId, err)
		return err
	}

	if room.SellerId != senderId && room.BuyerId != senderId {
		rt.notifyError(ctx, roomId, chat.ErrNotParticipant)
		return chat.ErrNotParticipant
	}

	lock := rt.roomLock(roomId)
	lock.Lock()

	view, err := rt.messages.Append(roomId, senderId, content)
	if err != nil {
		lock.Unlock()
		rt.notifyError(ctx, roomId, err)
		return err
	}

	// The message is durable from here on: a failed touch or publish
	// never rolls it back.
	if err := rt.rooms.Touch(roomId); err != nil {
		rt.log.Printf("touch activity for %q: %v", roomId, err)
	}

	rt.publish(ctx, pubsub.RoomTopic(roomId), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: view.Timestamp},
		Message:     &view,
	})
	lock.Unlock()

	rt.stats.Incr(stats.MessagesRouted)

	recipient := chat.Counterparty(room, senderId)
	rt.publish(ctx, pubsub.UserTopic(recipient), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &types.Notification{
			Message: "New message in chat",
			RoomId:  roomId,
		},
	})

	return nil
}

// notifyError reports a failed send in-band on the room topic instead
// of failing the transport.
func (rt *Router) notifyError(ctx context.Context, roomId string, cause error) {
	rt.publish(ctx, pubsub.RoomTopic(roomId), &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &types.Notification{
			Message: "Error: " + cause.Error(),
			RoomId:  roomId,
		},
	})
}

func (rt *Router) publish(ctx context.Context, topic string, msg *ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		rt.log.Printf("marshal message for %q: %v", topic, err)
		return
	}

	if err := rt.registry.Publish(ctx, topic, payload); err != nil {
		rt.log.Printf("publish to %q: %v", topic, err)
	}
}
