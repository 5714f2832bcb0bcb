package auth

import "context"

type contextKey string

const identityKey contextKey = "chat_identity"

// Identity is the authenticated caller behind a request.
type Identity struct {
	KeyID    string
	UserID   string
	Admin    bool
	RPMLimit *int
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}
