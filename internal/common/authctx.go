package common

import (
	"context"
	"strconv"

	"github.com/noah-isme/backend-fruver/internal/pricing"
)

type ctxKey string

const identityKey ctxKey = "auth/identity"

// Identity describes the verified caller of a request.
type Identity struct {
	UserID      int64
	AccountType string
	Tier        pricing.Tier
}

// IsAdmin reports whether the caller is a back-office user.
func (i Identity) IsAdmin() bool {
	return i.AccountType == pricing.AccountAdmin
}

// WithIdentity stores the authenticated caller on the provided context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the authenticated caller from the context if present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}

// UserID returns the caller's identifier formatted for logs.
func UserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(id.UserID, 10), true
}

// TierOrDefault returns the caller's tier, falling back to home for anonymous shoppers.
func TierOrDefault(ctx context.Context) pricing.Tier {
	if id, ok := IdentityFrom(ctx); ok && id.Tier.Valid() {
		return id.Tier
	}
	return pricing.TierHome
}

// UserIDString formats the identity's user id.
func UserIDString(id Identity) string {
	return strconv.FormatInt(id.UserID, 10)
}
