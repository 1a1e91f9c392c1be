package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"glen/internal/models"
)

// SaveMessage upserts one message row together with its parent edges, in one
// transaction. Re-delivery of the same id is a no-op; the stored row never
// changes after first insert. Edges may point at parents not yet seen
// locally; they resolve once the parent row arrives.
func (s *Store) SaveMessage(ctx context.Context, m *models.Message) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		const q = `
INSERT INTO messages (id, channel_id, sender, text, edit_of, delete_of, redacted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
		redacted := 0
		if m.Redacted {
			redacted = 1
		}
		if _, err := tx.ExecContext(ctx, q,
			m.ID, m.ChannelID, m.Sender, m.Text,
			nullable(m.EditOf), nullable(m.DeleteOf), redacted, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return s.insertParentsTx(ctx, tx, m.ID, m.ParentIDs)
	})
}

// InsertParents records directed reply edges, ignoring duplicates.
func (s *Store) InsertParents(ctx context.Context, messageID string, parentIDs []string) error {
	if len(parentIDs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.insertParentsTx(ctx, tx, messageID, parentIDs)
	})
}

func (s *Store) insertParentsTx(ctx context.Context, tx *sql.Tx, messageID string, parentIDs []string) error {
	const q = `INSERT OR IGNORE INTO message_parents (message_id, parent_id) VALUES (?, ?);`
	for _, pid := range parentIDs {
		if _, err := tx.ExecContext(ctx, q, messageID, pid); err != nil {
			return fmt.Errorf("insert parent edge: %w", err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// GetMessage loads one message with its parent edges, or ErrNoRows.
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	const q = `
SELECT id, channel_id, sender, text, edit_of, delete_of, redacted, created_at
FROM messages WHERE id = ? LIMIT 1;
`
	m, err := scanMessage(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	parents, err := s.ParentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	m.ParentIDs = parents
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m        models.Message
		editOf   sql.NullString
		deleteOf sql.NullString
		redacted int64
	)
	err := row.Scan(&m.ID, &m.ChannelID, &m.Sender, &m.Text, &editOf, &deleteOf, &redacted, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.EditOf = editOf.String
	m.DeleteOf = deleteOf.String
	m.Redacted = redacted != 0
	return &m, nil
}

// ChannelMessages returns a window of a channel's messages ordered ascending
// by creation time. The window is anchored at the newest end: with no bound it
// holds the latest messages, and a non-zero before bound pages backward
// through older ones.
func (s *Store) ChannelMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.Message, error) {
	const q = `
SELECT id, channel_id, sender, text, edit_of, delete_of, redacted, created_at
FROM messages
WHERE channel_id = ? AND (? = 0 OR created_at < ?)
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, channelID, before, before, limit)
	if err != nil {
		return nil, fmt.Errorf("select channel messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Selected newest-first; callers get ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ParentIDs lists the ids this message replies to (upward edges).
func (s *Store) ParentIDs(ctx context.Context, messageID string) ([]string, error) {
	return s.edgeIDs(ctx,
		`SELECT parent_id FROM message_parents WHERE message_id = ?;`, messageID)
}

// ChildIDs lists the ids replying to this message (downward edges).
func (s *Store) ChildIDs(ctx context.Context, messageID string) ([]string, error) {
	return s.edgeIDs(ctx,
		`SELECT message_id FROM message_parents WHERE parent_id = ?;`, messageID)
}

func (s *Store) edgeIDs(ctx context.Context, q, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("select edges: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetMessages loads the rows for a set of ids, skipping ids with no local row
// (dangling edges are legal).
func (s *Store) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := fmt.Sprintf(`
SELECT id, channel_id, sender, text, edit_of, delete_of, redacted, created_at
FROM messages WHERE id IN (%s);
`, placeholders)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages by id: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
