package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/aegis-chat/internal/safety"
	"github.com/af-corp/aegis-chat/internal/types"
)

// SecurityLogStore appends safety filter hits for admin review.
type SecurityLogStore struct {
	db DB
}

func NewSecurityLogStore(db DB) *SecurityLogStore {
	return &SecurityLogStore{db: db}
}

func (s *SecurityLogStore) Append(ctx context.Context, rec safety.Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO security_logs (user_id, content, violation_type, severity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, nullIfEmpty(rec.UserID), rec.Content, rec.ViolationType, string(rec.Severity), createdAt)
	if err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

// OrderStore records orders routed by the route_order tool. Fulfilment
// picks them up from the table.
type OrderStore struct {
	db  DB
	now func() time.Time
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

const orderStatusReceived = "received"

func (s *OrderStore) RouteOrder(ctx context.Context, o types.Order) (types.Order, error) {
	o.ID = uuid.NewString()
	o.Status = orderStatusReceived
	o.CreatedAt = s.now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (id, user_id, product, quantity, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.UserID, o.Product, o.Quantity, nullIfEmpty(o.Notes), o.Status, o.CreatedAt)
	if err != nil {
		return types.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

// WebsiteStore keeps generated HTML documents.
type WebsiteStore struct {
	db DB
}

func NewWebsiteStore(db DB) *WebsiteStore {
	return &WebsiteStore{db: db}
}

// SaveWebsite stores html and returns its id.
func (s *WebsiteStore) SaveWebsite(ctx context.Context, userID, title, html string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO websites (id, user_id, title, html)
		VALUES ($1, $2, $3, $4)
	`, id, userID, title, html)
	if err != nil {
		return "", fmt.Errorf("insert website: %w", err)
	}
	return id, nil
}
