package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"glen/internal/models"
)

// SaveProfile upserts the identity → (handle, inbox) mapping.
func (s *Store) SaveProfile(ctx context.Context, p *models.Profile) error {
	const q = `
INSERT OR REPLACE INTO profiles (identity, handle, inbox) VALUES (?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, q, p.Identity, p.Handle, p.Inbox); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, identity string) (*models.Profile, error) {
	const q = `SELECT identity, handle, inbox FROM profiles WHERE identity = ? LIMIT 1;`
	var p models.Profile
	err := s.db.QueryRowContext(ctx, q, identity).Scan(&p.Identity, &p.Handle, &p.Inbox)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// GetProfileByInbox resolves the reverse direction: transport inbox → identity.
func (s *Store) GetProfileByInbox(ctx context.Context, inbox string) (*models.Profile, error) {
	const q = `SELECT identity, handle, inbox FROM profiles WHERE inbox = ? LIMIT 1;`
	var p models.Profile
	err := s.db.QueryRowContext(ctx, q, inbox).Scan(&p.Identity, &p.Handle, &p.Inbox)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("select profile by inbox: %w", err)
	}
	return &p, nil
}
