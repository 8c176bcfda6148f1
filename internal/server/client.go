package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pondapp/chat-server/internal/auth"
	"github.com/pondapp/chat-server/internal/chat"
	"github.com/pondapp/chat-server/internal/pubsub"
	"github.com/pondapp/chat-server/internal/stats"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096

	// inbound frame budget per session
	frameRate  = rate.Limit(10)
	frameBurst = 20
)

// Client is one websocket connection and its logical session. The
// session starts unbound; a valid connect frame binds a verified
// identity for the rest of the connection's life.
type Client struct {
	conn    *websocket.Conn
	cs      *ChatServer
	log     *log.Logger
	stats   stats.StatsProvider
	limiter *rate.Limiter

	identityLock sync.RWMutex
	identity     *auth.Identity

	send chan []byte
	stop chan struct{}
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		conn:    conn,
		cs:      cs,
		log:     l,
		stats:   sp,
		limiter: rate.NewLimiter(frameRate, frameBurst),
		send:    make(chan []byte, 256),
		stop:    make(chan struct{}),
	}
}

// boundIdentity returns the session's identity, or nil while unbound.
func (c *Client) boundIdentity() *auth.Identity {
	c.identityLock.RLock()
	defer c.identityLock.RUnlock()
	return c.identity
}

// bind transitions Unbound -> Bound. It fails on a bound session;
// there is no way back to Unbound.
func (c *Client) bind(identity auth.Identity) bool {
	c.identityLock.Lock()
	defer c.identityLock.Unlock()

	if c.identity != nil {
		return false
	}
	c.identity = &identity
	return true
}

// Deliver implements pubsub.Subscriber.
func (c *Client) Deliver(_ string, payload []byte) bool {
	select {
	case c.send <- payload:
	default:
		c.log.Println("dropping delivery, send channel full")
		return false
	}

	return true
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		if !c.limiter.Allow() {
			c.queueMessage(ErrTooManyRequests(msg.Id))
			continue
		}

		switch {
		case msg.Connect != nil:
			c.handleConnect(&msg)
		case msg.Subscribe != nil:
			c.handleSubscribe(&msg)
		case msg.Unsubscribe != nil:
			c.handleUnsubscribe(&msg)
		case msg.Send != nil:
			c.handleSend(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

// handleConnect binds the session to the identity carried by the
// frame's credential. A rejected connect never acknowledges success;
// the connection stays open for a retry.
func (c *Client) handleConnect(msg *ClientMessage) {
	if c.boundIdentity() != nil {
		c.queueMessage(ErrSessionBound(msg.Id))
		return
	}

	identity, err := c.cs.verifier.Verify(msg.Connect.Token)
	if err != nil {
		c.log.Println("connect rejected:", err)
		c.queueMessage(ErrUnauthenticated(msg.Id))
		return
	}

	if !c.bind(identity) {
		c.queueMessage(ErrSessionBound(msg.Id))
		return
	}

	// the personal notification channel follows the session
	c.cs.registry.Subscribe(pubsub.UserTopic(identity.UserId), c)
	c.stats.Incr(stats.BoundSessions)
	c.stats.Incr(stats.ActiveSubscriptions)

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"user_id": identity.UserId}))
}

func (c *Client) handleSubscribe(msg *ClientMessage) {
	identity := c.boundIdentity()
	if identity == nil {
		c.queueMessage(ErrUnauthenticated(msg.Id))
		return
	}

	if err := c.cs.rooms.VerifyMembership(msg.Subscribe.RoomId, identity.UserId); err != nil {
		c.queueMessage(membershipError(msg.Id, err))
		return
	}

	c.cs.registry.Subscribe(pubsub.RoomTopic(msg.Subscribe.RoomId), c)
	c.stats.Incr(stats.ActiveSubscriptions)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) handleUnsubscribe(msg *ClientMessage) {
	identity := c.boundIdentity()
	if identity == nil {
		c.queueMessage(ErrUnauthenticated(msg.Id))
		return
	}

	c.cs.registry.Unsubscribe(pubsub.RoomTopic(msg.Unsubscribe.RoomId), c)
	c.stats.Decr(stats.ActiveSubscriptions)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) handleSend(msg *ClientMessage) {
	identity := c.boundIdentity()
	if identity == nil {
		c.queueMessage(ErrUnauthenticated(msg.Id))
		return
	}

	err := c.cs.router.Route(c.cs.baseCtx, identity.UserId, msg.Send.RoomId, msg.Send.Content)
	if err != nil {
		// already reported in-band on the room topic
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
}

func membershipError(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		return ErrRoomNotFound(id)
	case errors.Is(err, chat.ErrNotParticipant):
		return ErrForbidden(id)
	default:
		return ErrInternalError(id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return false
	}

	select {
	case c.send <- payload:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Client) cleanup() {
	select {
	case c.cs.deRegisterChan <- c:
	case <-c.cs.done:
	}
	c.stopClient()
}
