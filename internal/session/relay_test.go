package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/moviematch/internal/session"
)

func startRelay(t *testing.T, mr *miniredis.Miniredis) (*session.Hub, *session.RedisRelay) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := session.NewHub()
	relay := session.NewRedisRelay(hub, client, discardLogger())
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Stop)
	return hub, relay
}

func TestRedisRelay_FansOutAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	hubA, relayA := startRelay(t, mr)
	hubB, _ := startRelay(t, mr)

	local := make(chan *session.Session, 4)
	remote := make(chan *session.Session, 4)
	subA := hubA.Subscribe("123456", func(s *session.Session) { local <- s })
	defer subA.Unsubscribe()
	subB := hubB.Subscribe("123456", func(s *session.Session) { remote <- s })
	defer subB.Unsubscribe()

	snap := snapshot("123456", 2)
	snap.Matches = []int64{4}
	relayA.Publish(context.Background(), snap)

	assert.Equal(t, []int64{4}, receive(t, local).Matches)
	got := receive(t, remote)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, []int64{4}, got.Matches)

	// own messages come back from Redis but must not be delivered twice
	select {
	case s := <-local:
		t.Fatalf("duplicate local delivery of version %d", s.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisRelay_IgnoresForeignPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	hub, _ := startRelay(t, mr)

	got := make(chan *session.Session, 2)
	sub := hub.Subscribe("123456", func(s *session.Session) { got <- s })
	defer sub.Unsubscribe()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.Publish(ctx, session.Channel("123456"), "not json").Err())

	// snapshot for another code on this code's channel
	wrong, err := json.Marshal(map[string]any{"origin": "other", "snapshot": snapshot("654321", 1)})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, session.Channel("123456"), wrong).Err())

	right, err := json.Marshal(map[string]any{"origin": "other", "snapshot": snapshot("123456", 5)})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, session.Channel("123456"), right).Err())

	assert.Equal(t, int64(5), receive(t, got).Version)
	select {
	case s := <-got:
		t.Fatalf("unexpected delivery %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRedisRelay_StartStopIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	relay := session.NewRedisRelay(session.NewHub(), client, discardLogger())
	require.NoError(t, relay.Start(context.Background()))
	require.NoError(t, relay.Start(context.Background()))
	relay.Stop()
	relay.Stop()
}
