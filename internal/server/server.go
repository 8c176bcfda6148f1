package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pondapp/chat-server/internal/auth"
	"github.com/pondapp/chat-server/internal/chat"
	"github.com/pondapp/chat-server/internal/pubsub"
	"github.com/pondapp/chat-server/internal/stats"
)

const shutdownGracePeriod = 5 * time.Second

// ChatServer owns the set of live websocket sessions and ties them to
// the routing and subscription machinery.
type ChatServer struct {
	log      *log.Logger
	router   *Router
	verifier auth.TokenVerifier
	rooms    *chat.RoomService
	registry pubsub.Registry
	stats    stats.StatsProvider

	baseCtx    context.Context
	cancelBase context.CancelFunc

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(l *log.Logger, router *Router, verifier auth.TokenVerifier, rooms *chat.RoomService, registry pubsub.Registry, sp stats.StatsProvider) *ChatServer {
	ctx, cancel := context.WithCancel(context.Background())

	cs := &ChatServer{
		log:            l,
		router:         router,
		verifier:       verifier,
		rooms:          rooms,
		registry:       registry,
		stats:          sp,
		baseCtx:        ctx,
		cancelBase:     cancel,
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	sp.RegisterMetric(stats.ActiveConnections)
	sp.RegisterMetric(stats.BoundSessions)
	sp.RegisterMetric(stats.MessagesRouted)
	sp.RegisterMetric(stats.ActiveSubscriptions)

	return cs
}

// RegisterClient hands a freshly upgraded connection to the run loop.
func (cs *ChatServer) RegisterClient(client *Client) {
	cs.RegisterChan <- client
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case client := <-cs.RegisterChan:
			cs.addClient(client)
			cs.stats.Incr(stats.ActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
		case <-cs.stop:
			cs.log.Println("stopping chat server")
			cs.stopClients()
			return
		}
	}
}

func (cs *ChatServer) addClient(client *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[client] = struct{}{}
}

func (cs *ChatServer) removeClient(client *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[client]; !ok {
		return
	}
	delete(cs.clients, client)

	dropped := cs.registry.DropSubscriber(client)
	for i := 0; i < dropped; i++ {
		cs.stats.Decr(stats.ActiveSubscriptions)
	}
	if client.boundIdentity() != nil {
		cs.stats.Decr(stats.BoundSessions)
	}
	cs.stats.Decr(stats.ActiveConnections)
}

func (cs *ChatServer) stopClients() {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for client := range cs.clients {
		client.stopClient()
	}
}

// Shutdown stops accepting session events and waits for the run loop
// to drain, up to a grace period.
func (cs *ChatServer) Shutdown() {
	cs.cancelBase()
	close(cs.stop)

	select {
	case <-cs.done:
	case <-time.After(shutdownGracePeriod):
		cs.log.Println("timed out waiting for chat server to stop")
	}
}
