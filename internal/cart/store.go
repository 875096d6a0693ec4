package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON snapshot per session.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + sessionID
}

// Load returns the stored snapshot, or an empty one when none exists.
func (s RedisStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	if s.Client == nil {
		return Snapshot{}, errors.New("cart: redis client not configured")
	}
	data, err := s.Client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("cart: load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("cart: decode snapshot: %w", err)
	}
	return snap, nil
}

// Save writes the snapshot and refreshes its TTL. Empty carts are deleted.
func (s RedisStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if s.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	if len(snap.Lines) == 0 {
		return s.Delete(ctx, sessionID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return s.Client.Set(ctx, s.key(sessionID), data, ttl).Err()
}

// Delete removes the session's snapshot.
func (s RedisStore) Delete(ctx context.Context, sessionID string) error {
	if s.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	return s.Client.Del(ctx, s.key(sessionID)).Err()
}
