package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const upsertChatSQL = `
	INSERT INTO chats (session_id, id, name, unread_count, attrs, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, id) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
		unread_count = excluded.unread_count,
		attrs = excluded.attrs,
		updated_at = excluded.updated_at`

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(ctx context.Context, c *Chat) error {
	_, err := db.ExecContext(ctx, upsertChatSQL,
		c.SessionID, c.ID, c.Name, c.UnreadCount, attrsOrEmpty(c.Attrs), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert chat %q: %w", c.ID, err)
	}
	return nil
}

// BulkUpsertChats inserts or updates multiple chats in a single transaction.
func (db *DB) BulkUpsertChats(ctx context.Context, chats []Chat) error {
	if len(chats) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range chats {
			if _, err := tx.ExecContext(ctx, upsertChatSQL,
				c.SessionID, c.ID, c.Name, c.UnreadCount, attrsOrEmpty(c.Attrs), now); err != nil {
				return fmt.Errorf("upsert chat %q: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListChats returns a session's chats, most recently updated first.
func (db *DB) ListChats(ctx context.Context, sessionID string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, id, name, unread_count, attrs
		FROM chats WHERE session_id = ?
		ORDER BY updated_at DESC, id
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		var attrs string
		if err := rows.Scan(&c.SessionID, &c.ID, &c.Name, &c.UnreadCount, &attrs); err != nil {
			return nil, err
		}
		c.Attrs = []byte(attrs)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CountChats returns the number of chats stored for a session.
func (db *DB) CountChats(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// DeleteChats removes every chat of a session.
func (db *DB) DeleteChats(ctx context.Context, sessionID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM chats WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete chats for %q: %w", sessionID, err)
	}
	return res.RowsAffected()
}
