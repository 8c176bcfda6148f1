package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/pubsub"
	"github.com/pondapp/chat-server/internal/stats"
)

func TestNewChatServer(t *testing.T) {
	sp := &stats.MockStatsUpdater{}
	sp.On("RegisterMetric", stats.ActiveConnections).Once()
	sp.On("RegisterMetric", stats.BoundSessions).Once()
	sp.On("RegisterMetric", stats.MessagesRouted).Once()
	sp.On("RegisterMetric", stats.ActiveSubscriptions).Once()
	defer sp.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, pubsub.NewLocalRegistry(), sp)
	assert.NotNil(t, cs.router)
	assert.NotNil(t, cs.verifier)
	assert.Empty(t, cs.clients)
}

func TestChatServer_addClient_removeClient(t *testing.T) {
	registry := pubsub.NewLocalRegistry()
	cs := newTestChatServer(t, &database.MockChatRepository{}, registry, newLenientStats())

	client := newTestClient(t, cs)
	cs.addClient(client)
	assert.Len(t, cs.clients, 1)
	assert.Contains(t, cs.clients, client)

	cs.removeClient(client)
	assert.Empty(t, cs.clients)

	// removing an unknown client is a no-op
	cs.removeClient(client)
	assert.Empty(t, cs.clients)
}

func TestChatServer_removeClientDropsSubscriptions(t *testing.T) {
	sp := &stats.MockStatsUpdater{}
	sp.On("RegisterMetric", mock.Anything).Times(4)
	sp.On("Incr", mock.Anything).Maybe()
	sp.On("Decr", stats.ActiveSubscriptions).Times(2)
	sp.On("Decr", stats.BoundSessions).Once()
	sp.On("Decr", stats.ActiveConnections).Once()
	defer sp.AssertExpectations(t)

	registry := pubsub.NewLocalRegistry()
	cs := newTestChatServer(t, &database.MockChatRepository{}, registry, sp)

	client := newTestClient(t, cs)
	cs.addClient(client)

	client.handleConnect(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Connect:     &Connect{Token: issueTestToken(t, testBuyerId)},
	})
	nextFrame(t, client)
	registry.Subscribe(pubsub.RoomTopic("listing_x_buyer_y"), client)

	cs.removeClient(client)

	assert.Zero(t, registry.DropSubscriber(client), "expected no subscriptions left")
}

func TestChatServerRun(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, pubsub.NewLocalRegistry(), newLenientStats())

	go cs.Run()

	client := newTestClient(t, cs)
	cs.RegisterChan <- client

	assert.Eventually(t, func() bool {
		cs.clientsLock.Lock()
		defer cs.clientsLock.Unlock()
		_, ok := cs.clients[client]
		return ok
	}, time.Second, 10*time.Millisecond, "expected client to be registered")

	cs.deRegisterChan <- client

	assert.Eventually(t, func() bool {
		cs.clientsLock.Lock()
		defer cs.clientsLock.Unlock()
		return len(cs.clients) == 0
	}, time.Second, 10*time.Millisecond, "expected client to be removed")

	cs.Shutdown()

	select {
	case <-cs.done:
	default:
		t.Error("expected run loop to have exited")
	}
}

func TestChatServerShutdown_stopsClients(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, pubsub.NewLocalRegistry(), newLenientStats())

	go cs.Run()

	client := newTestClient(t, cs)
	cs.RegisterChan <- client

	cs.Shutdown()

	select {
	case <-client.stop:
	case <-time.After(time.Second):
		t.Error("expected client stop channel to be closed")
	}
}
