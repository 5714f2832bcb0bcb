package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/aegis-chat/internal/cache"
	"github.com/af-corp/aegis-chat/internal/store"
)

const keyCacheTTL = 5 * time.Minute

// KeyStore resolves a key hash. An unknown or expired key is (nil, nil).
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// CachedKeyStore reads api_keys from PostgreSQL behind a TTL cache.
type CachedKeyStore struct {
	db     store.DB
	cache  cache.Cache
	logger *slog.Logger
}

// NewCachedKeyStore returns a store; c may be nil to disable caching.
func NewCachedKeyStore(db store.DB, c cache.Cache, logger *slog.Logger) *CachedKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedKeyStore{db: db, cache: c, logger: logger}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	cacheKey := "key:" + keyHash
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
			var meta KeyMetadata
			if err := json.Unmarshal(raw, &meta); err == nil && time.Now().Before(meta.ExpiresAt) {
				return &meta, nil
			}
		}
	}

	meta, err := s.lookupDB(ctx, keyHash)
	if err != nil || meta == nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(meta); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, keyCacheTTL); err != nil {
				s.logger.Warn("api key cache write failed", "error", err)
			}
		}
	}
	return meta, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	var meta KeyMetadata
	var userID *string

	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, is_admin, rpm_limit, expires_at
		FROM api_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(&meta.ID, &userID, &meta.Name, &meta.Admin, &meta.RPMLimit, &meta.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	if userID != nil {
		meta.UserID = *userID
	}

	go func(id string) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.db.Exec(bgCtx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
			s.logger.Debug("failed to touch api key", "key_id", id, "error", err)
		}
	}(meta.ID)

	return &meta, nil
}
