// Redis-backed occurrence presence, grounded on the teacher's
// orchestration/redis_task_store.go idiom: a go-redis/v8 client, a
// {prefix}:{key} keyspace, SET-with-TTL as the heartbeat primitive. This
// is deliberately separate from the in-process Registry above: Registry
// answers "which provider instance should handle this capability call
// right now" within one process, while Presence answers "which
// occurrences are alive" across a multi-occurrence deployment sharing
// one Redis instance — the registry itself never needs Redis to make a
// selection decision.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// PresenceConfig configures the Redis-backed occurrence heartbeat.
type PresenceConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// DefaultPresenceConfig mirrors the teacher's DefaultRedisTaskStoreConfig
// defaulting pattern.
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{KeyPrefix: "ciris:presence", TTL: 30 * time.Second}
}

// Presence publishes and reads per-occurrence liveness in Redis, so a
// deployment running more than one CIRIS occurrence against shared
// infrastructure can tell which are currently up without a side channel.
type Presence struct {
	client *redis.Client
	cfg    PresenceConfig
}

// NewPresence wraps an already-connected redis.Client. Establishing the
// connection (address, TLS, auth) is the caller's concern, matching the
// teacher's own client-is-injected convention.
func NewPresence(client *redis.Client, cfg PresenceConfig) *Presence {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultPresenceConfig().KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultPresenceConfig().TTL
	}
	return &Presence{client: client, cfg: cfg}
}

func (p *Presence) key(occurrenceID string) string {
	return fmt.Sprintf("%s:%s", p.cfg.KeyPrefix, occurrenceID)
}

// Heartbeat marks occurrenceID alive for one TTL window. Callers re-call
// this on an interval shorter than the TTL (the processor's poll loop is
// a natural place).
func (p *Presence) Heartbeat(ctx context.Context, occurrenceID string) error {
	if err := p.client.Set(ctx, p.key(occurrenceID), time.Now().UTC().Format(time.RFC3339Nano), p.cfg.TTL).Err(); err != nil {
		return cerr.Wrap("Presence.Heartbeat", cerr.KindFatal, err)
	}
	return nil
}

// Alive reports whether occurrenceID has heartbeat within the TTL window.
func (p *Presence) Alive(ctx context.Context, occurrenceID string) (bool, error) {
	n, err := p.client.Exists(ctx, p.key(occurrenceID)).Result()
	if err != nil {
		return false, cerr.Wrap("Presence.Alive", cerr.KindFatal, err)
	}
	return n > 0, nil
}

// Occurrences lists every occurrence currently within its TTL window.
func (p *Presence) Occurrences(ctx context.Context) ([]string, error) {
	keys, err := p.client.Keys(ctx, p.key("*")).Result()
	if err != nil {
		return nil, cerr.Wrap("Presence.Occurrences", cerr.KindFatal, err)
	}
	prefix := p.cfg.KeyPrefix + ":"
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(prefix):])
	}
	return out, nil
}
