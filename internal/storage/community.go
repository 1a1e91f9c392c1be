package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"glen/internal/models"
)

// Projection persistence. Mutators take the fold's transaction so every table
// an event touches commits or rolls back as one unit.

// EnsureCommunity inserts the community row if absent. The first config event
// for an unknown community establishes its existence.
func (s *Store) EnsureCommunity(ctx context.Context, tx *sql.Tx, communityID string) error {
	const q = `INSERT OR IGNORE INTO communities (id) VALUES (?);`
	if _, err := tx.ExecContext(ctx, q, communityID); err != nil {
		return fmt.Errorf("ensure community: %w", err)
	}
	return nil
}

// SaveCommunityConfig writes the community's merged config columns.
func (s *Store) SaveCommunityConfig(ctx context.Context, tx *sql.Tx, communityID string, cfg models.CommunityConfig) error {
	const q = `
UPDATE communities
SET name = ?, description = ?, invite_policy = ?, default_permission = ?
WHERE id = ?;
`
	if _, err := tx.ExecContext(ctx, q,
		cfg.Name, cfg.Description, string(cfg.InvitePolicy), string(cfg.DefaultPermission), communityID,
	); err != nil {
		return fmt.Errorf("save community config: %w", err)
	}
	return nil
}

// SaveSnapshotMarker records the ordering marker of the last applied snapshot.
func (s *Store) SaveSnapshotMarker(ctx context.Context, tx *sql.Tx, communityID string, marker int64) error {
	const q = `UPDATE communities SET last_snapshot_ts = ? WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, q, marker, communityID); err != nil {
		return fmt.Errorf("save snapshot marker: %w", err)
	}
	return nil
}

// UpsertChannel writes one channel row; re-applying identical fields is a
// no-op, divergent fields are last-write-wins.
func (s *Store) UpsertChannel(ctx context.Context, tx *sql.Tx, communityID string, ch *models.ChannelState) error {
	const q = `
INSERT INTO channels (id, community_id, name, description, group_ref, category, permission, archived, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(community_id, id) DO UPDATE SET
  name = excluded.name,
  description = excluded.description,
  group_ref = excluded.group_ref,
  category = excluded.category,
  permission = excluded.permission,
  archived = excluded.archived;
`
	archived := 0
	if ch.Archived {
		archived = 1
	}
	if _, err := tx.ExecContext(ctx, q,
		ch.ID, communityID, ch.Name, ch.Description, ch.GroupRef, ch.Category,
		string(ch.Permission), archived, ch.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// UpsertRole records the last observed role assignment for an identity.
func (s *Store) UpsertRole(ctx context.Context, tx *sql.Tx, communityID, identity string, role models.Role) error {
	const q = `
INSERT INTO roles (community_id, identity, role) VALUES (?, ?, ?)
ON CONFLICT(community_id, identity) DO UPDATE SET role = excluded.role;
`
	if _, err := tx.ExecContext(ctx, q, communityID, identity, string(role)); err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func (s *Store) InsertBan(ctx context.Context, tx *sql.Tx, communityID, identity string) error {
	const q = `INSERT OR IGNORE INTO bans (community_id, identity) VALUES (?, ?);`
	if _, err := tx.ExecContext(ctx, q, communityID, identity); err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

func (s *Store) DeleteBan(ctx context.Context, tx *sql.Tx, communityID, identity string) error {
	const q = `DELETE FROM bans WHERE community_id = ? AND identity = ?;`
	if _, err := tx.ExecContext(ctx, q, communityID, identity); err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// ClearProjection removes the community's channel, role and ban sets. Used by
// snapshot application, which replaces rather than merges.
func (s *Store) ClearProjection(ctx context.Context, tx *sql.Tx, communityID string) error {
	for _, q := range []string{
		`DELETE FROM channels WHERE community_id = ?;`,
		`DELETE FROM roles WHERE community_id = ?;`,
		`DELETE FROM bans WHERE community_id = ?;`,
	} {
		if _, err := tx.ExecContext(ctx, q, communityID); err != nil {
			return fmt.Errorf("clear projection: %w", err)
		}
	}
	return nil
}

// RedactMessageText tombstones a message's text without touching its edges.
func (s *Store) RedactMessageText(ctx context.Context, tx *sql.Tx, messageID string) (bool, error) {
	const q = `UPDATE messages SET text = '', redacted = 1 WHERE id = ?;`
	res, err := tx.ExecContext(ctx, q, messageID)
	if err != nil {
		return false, fmt.Errorf("redact message: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LoadCommunity reads the full projection for one community, or ErrNoRows if
// it was never synced.
func (s *Store) LoadCommunity(ctx context.Context, communityID string) (*models.CommunityState, error) {
	state := models.NewCommunityState(communityID)

	const qc = `
SELECT name, description, invite_policy, default_permission, last_snapshot_ts
FROM communities WHERE id = ? LIMIT 1;
`
	var name, desc, policy, perm string
	err := s.db.QueryRowContext(ctx, qc, communityID).Scan(&name, &desc, &policy, &perm, &state.LastSnapshotTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("select community: %w", err)
	}
	state.Config = models.CommunityConfig{
		Name:              name,
		Description:       desc,
		InvitePolicy:      models.InvitePolicy(policy),
		DefaultPermission: models.Permission(perm),
	}

	channels, err := s.loadChannels(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		state.Channels[ch.ID] = ch
	}

	const qr = `SELECT identity, role FROM roles WHERE community_id = ?;`
	rows, err := s.db.QueryContext(ctx, qr, communityID)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var identity, role string
		if err := rows.Scan(&identity, &role); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		state.Roles[identity] = models.Role(role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qb = `SELECT identity FROM bans WHERE community_id = ?;`
	brows, err := s.db.QueryContext(ctx, qb, communityID)
	if err != nil {
		return nil, fmt.Errorf("select bans: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var identity string
		if err := brows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		state.Bans[identity] = struct{}{}
	}
	if err := brows.Err(); err != nil {
		return nil, err
	}

	return state, nil
}

func (s *Store) loadChannels(ctx context.Context, communityID string) ([]*models.ChannelState, error) {
	const q = `
SELECT id, name, description, group_ref, category, permission, archived, created_at
FROM channels WHERE community_id = ?
ORDER BY created_at ASC;
`
	rows, err := s.db.QueryContext(ctx, q, communityID)
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}
	defer rows.Close()

	var out []*models.ChannelState
	for rows.Next() {
		var (
			ch       models.ChannelState
			perm     string
			archived int64
		)
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.GroupRef, &ch.Category, &perm, &archived, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ch.Permission = models.Permission(perm)
		ch.Archived = archived != 0
		out = append(out, &ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveChannels lists non-archived channels for display; archived channels
// stay reachable by id via LoadCommunity.
func (s *Store) ActiveChannels(ctx context.Context, communityID string) ([]*models.ChannelState, error) {
	channels, err := s.loadChannels(ctx, communityID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ChannelState, 0, len(channels))
	for _, ch := range channels {
		if !ch.Archived {
			out = append(out, ch)
		}
	}
	return out, nil
}

// ListCommunityIDs returns every community the node has synced.
func (s *Store) ListCommunityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM communities ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("select communities: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
