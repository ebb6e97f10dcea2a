package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/facturaIA/textscan-service/internal/logging"
	"github.com/facturaIA/textscan-service/internal/pipeline"
)

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes every event as JSON on a pub/sub channel and
// mirrors the current state under "<channel>:state". OnEvent only enqueues;
// a background goroutine talks to Redis.
type RedisPublisher struct {
	client  redisClient
	channel string
	queue   chan pipeline.Event
	log     *logging.Logger

	dropped   atomic.Uint64
	published atomic.Uint64
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisPublisher connects to redisURL and starts the publish loop.
func NewRedisPublisher(ctx context.Context, redisURL, channel string, buffer int, log *logging.Logger) (*RedisPublisher, error) {
	// Parse Redis URL
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Create Redis client
	client := redis.NewClient(opt)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisPublisher(client, channel, buffer, log), nil
}

func newRedisPublisher(client redisClient, channel string, buffer int, log *logging.Logger) *RedisPublisher {
	if channel == "" {
		channel = "textscan:events"
	}
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logging.Discard()
	}
	p := &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan pipeline.Event, buffer),
		log:     log,
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// OnEvent implements pipeline.Listener. It never blocks.
func (p *RedisPublisher) OnEvent(e pipeline.Event) {
	select {
	case p.queue <- e:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warn("event queue full, dropping", "dropped", n)
		}
	}
}

func (p *RedisPublisher) loop() {
	defer p.wg.Done()
	for e := range p.queue {
		p.publish(e)
	}
}

func (p *RedisPublisher) publish(e pipeline.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Error("marshal event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.log.Warn("publish failed", "channel", p.channel, "error", err)
		return
	}
	if e.Kind == pipeline.EventStateChanged {
		if err := p.client.Set(ctx, p.channel+":state", e.State.String(), 0).Err(); err != nil {
			p.log.Warn("state mirror failed", "error", err)
		}
	}
	p.published.Add(1)
}

// Stats reports published and dropped counts.
func (p *RedisPublisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

// Close drains queued events and closes the client. OnEvent must not be
// called afterwards.
func (p *RedisPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.client.Close()
	})
	return err
}
