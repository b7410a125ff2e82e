package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const upsertMessageSQL = `
	INSERT INTO messages (session_id, id, remote_jid, sender, from_me, payload, text, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, id) DO UPDATE SET
		remote_jid = excluded.remote_jid,
		sender = CASE WHEN excluded.sender != '' THEN excluded.sender ELSE messages.sender END,
		from_me = excluded.from_me,
		payload = COALESCE(excluded.payload, messages.payload),
		text = CASE WHEN excluded.text != '' THEN excluded.text ELSE messages.text END,
		timestamp = excluded.timestamp`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertMessage(ctx context.Context, e execer, m *Message) error {
	_, err := e.ExecContext(ctx, upsertMessageSQL,
		m.SessionID, m.ID, m.RemoteJID, m.Sender, m.FromMe, m.Payload, m.Text, m.Timestamp)
	return err
}

// UpsertMessage inserts or updates a message (idempotent on session_id + id).
func (db *DB) UpsertMessage(ctx context.Context, m *Message) error {
	if err := upsertMessage(ctx, db, m); err != nil {
		return fmt.Errorf("upsert message %q: %w", m.ID, err)
	}
	return nil
}

// BulkUpsertMessages upserts a batch in a single transaction.
func (db *DB) BulkUpsertMessages(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for i := range msgs {
			if err := upsertMessage(ctx, tx, &msgs[i]); err != nil {
				return fmt.Errorf("upsert message %q: %w", msgs[i].ID, err)
			}
		}
		return nil
	})
}

// FindMessage returns one message by key, or ErrNotFound.
func (db *DB) FindMessage(ctx context.Context, sessionID, id string) (*Message, error) {
	var m Message
	err := db.QueryRowContext(ctx, `
		SELECT session_id, id, remote_jid, sender, from_me, payload, text, timestamp
		FROM messages WHERE session_id = ? AND id = ?`, sessionID, id).
		Scan(&m.SessionID, &m.ID, &m.RemoteJID, &m.Sender, &m.FromMe, &m.Payload, &m.Text, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages counts a session's messages exchanged with remoteJID in one
// direction. An empty remoteJID counts across all chats.
func (db *DB) CountMessages(ctx context.Context, sessionID, remoteJID string, fromMe bool) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE session_id = ? AND (? = '' OR remote_jid = ?) AND from_me = ?`,
		sessionID, remoteJID, remoteJID, fromMe).Scan(&count)
	return count, err
}

// DeleteMessages removes every message of a session.
func (db *DB) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete messages for %q: %w", sessionID, err)
	}
	return res.RowsAffected()
}
