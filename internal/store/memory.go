package store

import (
	"context"
	"fmt"
	"strings"
)

// MemoryStore holds per-user long-term memory facts.
type MemoryStore struct {
	db DB
}

func NewMemoryStore(db DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// TopFacts returns up to limit facts, most important first and newest first
// within the same importance.
func (s *MemoryStore) TopFacts(ctx context.Context, userID string, limit int) ([]string, error) {
	if userID == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT content
		FROM memory_facts
		WHERE user_id = $1
		ORDER BY importance DESC, created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query memory_facts: %w", err)
	}
	defer rows.Close()

	var facts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan memory fact: %w", err)
		}
		facts = append(facts, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory_facts: %w", err)
	}
	return facts, nil
}

// SaveFact appends a fact. Repeating an identical fact bumps its importance
// instead of storing a duplicate.
func (s *MemoryStore) SaveFact(ctx context.Context, userID, content string, importance int) error {
	content = strings.TrimSpace(content)
	if userID == "" || content == "" {
		return fmt.Errorf("save memory fact: user id and content are required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_facts (user_id, content, importance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, content)
		DO UPDATE SET importance = GREATEST(memory_facts.importance, EXCLUDED.importance),
		              created_at = NOW()
	`, userID, content, importance)
	if err != nil {
		return fmt.Errorf("insert memory fact: %w", err)
	}
	return nil
}
