package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-fruver/internal/pricing"
)

// ErrSessionNotFound is returned when a checkout session expired or belongs to someone else.
var ErrSessionNotFound = errors.New("checkout: session not found")

// Session freezes the facts evaluated when checkout began.
type Session struct {
	ID         string       `json:"id"`
	CustomerID int64        `json:"customerId"`
	Tier       pricing.Tier `json:"tier"`
	FirstOrder bool         `json:"firstOrder"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// SessionRepository persists checkout sessions.
type SessionRepository interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessions stores sessions as JSON with a TTL.
type RedisSessions struct {
	Client *redis.Client
	TTL    time.Duration
}

func sessionKey(id string) string { return "checkout:session:" + id }

// Save writes the session.
func (r RedisSessions) Save(ctx context.Context, s Session) error {
	if r.Client == nil {
		return errors.New("checkout: redis client not configured")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return r.Client.Set(ctx, sessionKey(s.ID), data, ttl).Err()
}

// Load reads a session, returning ErrSessionNotFound when it is missing or expired.
func (r RedisSessions) Load(ctx context.Context, id string) (Session, error) {
	if r.Client == nil {
		return Session{}, errors.New("checkout: redis client not configured")
	}
	data, err := r.Client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("checkout: load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("checkout: decode session: %w", err)
	}
	return s, nil
}

// Delete drops a session.
func (r RedisSessions) Delete(ctx context.Context, id string) error {
	if r.Client == nil {
		return errors.New("checkout: redis client not configured")
	}
	return r.Client.Del(ctx, sessionKey(id)).Err()
}
