package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const upsertContactSQL = `
	INSERT INTO contacts (session_id, id, name, notify, attrs, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, id) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
		notify = CASE WHEN excluded.notify != '' THEN excluded.notify ELSE contacts.notify END,
		attrs = CASE WHEN excluded.attrs != '{}' THEN excluded.attrs ELSE contacts.attrs END,
		updated_at = excluded.updated_at`

// UpsertContact inserts or updates a contact. Empty fields never overwrite
// known values.
func (db *DB) UpsertContact(ctx context.Context, c *Contact) error {
	_, err := db.ExecContext(ctx, upsertContactSQL,
		c.SessionID, c.ID, c.Name, c.Notify, attrsOrEmpty(c.Attrs), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", c.ID, err)
	}
	return nil
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(ctx context.Context, contacts []Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range contacts {
			if _, err := tx.ExecContext(ctx, upsertContactSQL,
				c.SessionID, c.ID, c.Name, c.Notify, attrsOrEmpty(c.Attrs), now); err != nil {
				return fmt.Errorf("upsert contact %q: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetContact returns a contact by key, or ErrNotFound.
func (db *DB) GetContact(ctx context.Context, sessionID, id string) (*Contact, error) {
	var c Contact
	var attrs string
	err := db.QueryRowContext(ctx, `
		SELECT session_id, id, name, notify, attrs FROM contacts
		WHERE session_id = ? AND id = ?`, sessionID, id).
		Scan(&c.SessionID, &c.ID, &c.Name, &c.Notify, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Attrs = []byte(attrs)
	return &c, nil
}

// CountContacts returns the number of contacts stored for a session.
func (db *DB) CountContacts(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// DeleteContacts removes every contact of a session.
func (db *DB) DeleteContacts(ctx context.Context, sessionID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM contacts WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete contacts for %q: %w", sessionID, err)
	}
	return res.RowsAffected()
}
