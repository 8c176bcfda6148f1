package pubsub

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "pond:chat:"

// RedisRegistry bridges topic publishes through Redis so a message
// persisted by one process reaches subscribers connected to another.
// Subscription state stays local to each process; only payloads cross
// the wire.
type RedisRegistry struct {
	local  *LocalRegistry
	client *redis.Client
	pubsub *redis.PubSub
	log    *log.Logger
	done   chan struct{}
}

func NewRedisRegistry(client *redis.Client, logger *log.Logger) *RedisRegistry {
	r := &RedisRegistry{
		local:  NewLocalRegistry(),
		client: client,
		log:    logger,
		done:   make(chan struct{}),
	}

	r.pubsub = client.PSubscribe(context.Background(), channelPrefix+"*")
	go r.run()

	return r
}

// run delivers bridged payloads to local subscribers. All deliveries,
// including ones published by this process, arrive through here so
// every process observes the same per-channel order.
func (r *RedisRegistry) run() {
	defer close(r.done)

	for msg := range r.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, channelPrefix)
		r.local.fanout(topic, []byte(msg.Payload))
	}
}

func (r *RedisRegistry) Subscribe(topic string, sub Subscriber) {
	r.local.Subscribe(topic, sub)
}

func (r *RedisRegistry) Unsubscribe(topic string, sub Subscriber) {
	r.local.Unsubscribe(topic, sub)
}

func (r *RedisRegistry) DropSubscriber(sub Subscriber) int {
	return r.local.DropSubscriber(sub)
}

func (r *RedisRegistry) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, channelPrefix+topic, payload).Err()
}

func (r *RedisRegistry) Close() error {
	if err := r.pubsub.Close(); err != nil {
		r.log.Println("close redis subscription:", err)
	}
	<-r.done

	return r.local.Close()
}
