package lib

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// RedisChannel carries serialized events between instances over Redis Pub/Sub.
type RedisChannel struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
	wg   sync.WaitGroup
}

func NewRedisChannel(c *redis.Client) *RedisChannel {
	return &RedisChannel{client: c}
}

func (r *RedisChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, string(payload)).Err()
}

// Subscribe confirms the subscription with the server before returning, so an
// unreachable Redis is reported to the caller instead of failing silently.
func (r *RedisChannel) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return err
	}
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	r.mu.Lock()
	r.subs = append(r.subs, ps)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range ps.Channel() {
			handler([]byte(msg.Payload))
		}
		log.Printf("[redis] Subscription to %s closed\n", channel)
	}()
	return nil
}

func (r *RedisChannel) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var first error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.wg.Wait()
	return first
}
