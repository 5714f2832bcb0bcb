package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	keyScheme     = "chat"
	alphanumeric  = "abcdefghijklmnopqrstuvwxyz0123456789"
	randomKeyLen  = 32
	displayPrefix = 8
)

// GenerateKey creates a key of the form chat-{env}-{32 random alphanumerics}.
func GenerateKey(env string) (string, error) {
	random, err := randomString(randomKeyLen)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return keyScheme + "-" + env + "-" + random, nil
}

// HashKey returns the SHA-256 hex digest stored in place of the key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// KeyPrefix returns chat-{env}-{first 8 random chars}, safe to display and log.
func KeyPrefix(key string) string {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 || parts[0] != keyScheme {
		if len(key) > 12 {
			return key[:12]
		}
		return key
	}
	random := parts[2]
	if len(random) > displayPrefix {
		random = random[:displayPrefix]
	}
	return parts[0] + "-" + parts[1] + "-" + random
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata is what a key hash resolves to.
type KeyMetadata struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Admin     bool      `json:"admin"`
	RPMLimit  *int      `json:"rpm_limit,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ParseDuration accepts time.ParseDuration input plus whole days ("30d").
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil || n <= 0 {
			return 0, fmt.Errorf("parse days %q: invalid day count", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
