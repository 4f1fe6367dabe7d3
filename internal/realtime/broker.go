package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Broker moves encoded envelopes from publishers to the hub.
type Broker interface {
	Publish(ctx context.Context, data []byte) error
	// Subscribe blocks, calling deliver for every envelope, until ctx is done.
	Subscribe(ctx context.Context, deliver func([]byte)) error
}

// LocalBroker keeps everything in-process. A single channel preserves publish order.
type LocalBroker struct {
	ch chan []byte
}

func NewLocalBroker(buffer int) *LocalBroker {
	return &LocalBroker{ch: make(chan []byte, buffer)}
}

func (b *LocalBroker) Publish(ctx context.Context, data []byte) error {
	select {
	case b.ch <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Subscribe(ctx context.Context, deliver func([]byte)) error {
	for {
		select {
		case data := <-b.ch:
			deliver(data)
		case <-ctx.Done():
			return nil
		}
	}
}

// RedisBroker routes envelopes through one Redis pub/sub channel.
type RedisBroker struct {
	redis   *redis.Client
	channel string
}

func NewRedisBroker(redisClient *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{redis: redisClient, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, data []byte) error {
	return b.redis.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func([]byte)) error {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			deliver([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}
