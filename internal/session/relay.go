package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayChannelPrefix = "moviematch:session:"

// relayEnvelope is the wire form of a relayed snapshot.
type relayEnvelope struct {
	Origin   string   `json:"origin"`
	Snapshot *Session `json:"snapshot"`
}

// RedisRelay publishes committed snapshots to Redis and replays snapshots
// committed by other server processes into the local Hub.
type RedisRelay struct {
	hub    *Hub
	client *redis.Client
	origin string
	log    *slog.Logger

	mu      sync.Mutex
	running bool
	pubsub  *redis.PubSub
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRedisRelay creates a relay in front of hub.
func NewRedisRelay(hub *Hub, client *redis.Client, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{
		hub:    hub,
		client: client,
		origin: uuid.NewString(),
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Channel returns the Redis channel for a session code.
func Channel(code string) string {
	return relayChannelPrefix + code
}

// Publish delivers locally, then to Redis. Redis failures are logged; local
// subscribers are already served.
func (r *RedisRelay) Publish(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	r.hub.Publish(ctx, s)

	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Snapshot: s})
	if err != nil {
		r.log.Error("relay encode failed", "session", s.Code, "err", err)
		return
	}
	if err := r.client.Publish(ctx, Channel(s.Code), payload).Err(); err != nil {
		r.log.Warn("relay publish failed", "session", s.Code, "err", err)
	}
}

// Start subscribes to every session channel and forwards remote snapshots.
// It returns once the subscription is confirmed.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	pubsub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}
	r.pubsub = pubsub

	go r.processMessages(ctx, pubsub.Channel())

	r.log.Info("session relay started", "origin", r.origin)
	return nil
}

// Stop closes the Redis subscription and waits for the forwarder to exit.
func (r *RedisRelay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	_ = r.pubsub.Close()
	<-r.doneCh
	r.log.Info("session relay stopped")
}

func (r *RedisRelay) processMessages(ctx context.Context, messages <-chan *redis.Message) {
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *RedisRelay) handleMessage(ctx context.Context, msg *redis.Message) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.log.Warn("relay decode failed", "channel", msg.Channel, "err", err)
		return
	}
	if env.Origin == r.origin || env.Snapshot == nil {
		return
	}
	if code := strings.TrimPrefix(msg.Channel, relayChannelPrefix); code != env.Snapshot.Code {
		r.log.Warn("relay snapshot on wrong channel", "channel", msg.Channel, "session", env.Snapshot.Code)
		return
	}
	env.Snapshot.Normalize()
	r.hub.Publish(ctx, env.Snapshot)
}
