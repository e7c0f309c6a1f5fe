package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPresenceTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPresence_HeartbeatThenAliveReportsTrue(t *testing.T) {
	_, client := setupPresenceTestRedis(t)
	p := NewPresence(client, DefaultPresenceConfig())

	require.NoError(t, p.Heartbeat(context.Background(), "occ1"))

	alive, err := p.Alive(context.Background(), "occ1")
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestPresence_UnknownOccurrenceIsNotAlive(t *testing.T) {
	_, client := setupPresenceTestRedis(t)
	p := NewPresence(client, DefaultPresenceConfig())

	alive, err := p.Alive(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestPresence_HeartbeatExpiresAfterTTL(t *testing.T) {
	mr, client := setupPresenceTestRedis(t)
	p := NewPresence(client, PresenceConfig{KeyPrefix: "test:presence", TTL: 50 * time.Millisecond})

	require.NoError(t, p.Heartbeat(context.Background(), "occ1"))
	mr.FastForward(100 * time.Millisecond)

	alive, err := p.Alive(context.Background(), "occ1")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestPresence_OccurrencesListsEveryLiveKey(t *testing.T) {
	_, client := setupPresenceTestRedis(t)
	p := NewPresence(client, PresenceConfig{KeyPrefix: "test:presence", TTL: time.Minute})

	require.NoError(t, p.Heartbeat(context.Background(), "occ-a"))
	require.NoError(t, p.Heartbeat(context.Background(), "occ-b"))

	occs, err := p.Occurrences(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"occ-a", "occ-b"}, occs)
}
