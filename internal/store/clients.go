package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const clientColumns = `id, name, COALESCE(avatar_url, ''), COALESCE(phone, ''), COALESCE(connected_at, 0), status, created_at, updated_at`

// CreateClient inserts a new client in PENDING_SETUP.
func (db *DB) CreateClient(ctx context.Context, id, name string) (*Client, error) {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO clients (id, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, name, StatusPendingSetup, now, now)
	if err != nil {
		return nil, fmt.Errorf("create client %q: %w", id, err)
	}
	return &Client{ID: id, Name: name, Status: StatusPendingSetup, CreatedAt: now, UpdatedAt: now}, nil
}

// GetClient returns a client by id, or ErrNotFound.
func (db *DB) GetClient(ctx context.Context, id string) (*Client, error) {
	row := db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListClients returns all clients, oldest first.
func (db *DB) ListClients(ctx context.Context) ([]Client, error) {
	return db.queryClients(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
}

// ListClientsByStatus returns clients whose status is one of statuses.
func (db *DB) ListClientsByStatus(ctx context.Context, statuses ...Status) ([]Client, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `) ORDER BY created_at, id`
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return db.queryClients(ctx, query, args...)
}

// SetClientStatus updates a client's status. Missing clients are ignored:
// status writes can race with a wipe.
func (db *DB) SetClientStatus(ctx context.Context, id string, status Status) error {
	_, err := db.ExecContext(ctx, `UPDATE clients SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set status %s for %q: %w", status, id, err)
	}
	return nil
}

// SetClientStatusIf updates the status only when the current status is one
// of from. It reports whether a row changed.
func (db *DB) SetClientStatusIf(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{to, time.Now().UnixMilli(), id}
	for _, s := range from {
		args = append(args, s)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE clients SET status = ?, updated_at = ? WHERE id = ? AND status IN (?`+strings.Repeat(",?", len(from)-1)+`)`,
		args...)
	if err != nil {
		return false, fmt.Errorf("set status %s for %q: %w", to, id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkClientRunning records a successful connection with its identity.
func (db *DB) MarkClientRunning(ctx context.Context, id, name, phone, avatarURL string, connectedAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE clients SET
			name = ?,
			phone = ?,
			avatar_url = CASE WHEN ? != '' THEN ? ELSE avatar_url END,
			connected_at = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?`,
		name, phone, avatarURL, avatarURL, connectedAt.UnixMilli(), StatusRunning, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark running %q: %w", id, err)
	}
	return nil
}

// DeleteClient removes the client row.
func (db *DB) DeleteClient(ctx context.Context, id string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete client %q: %w", id, err)
	}
	return res.RowsAffected()
}

func (db *DB) queryClients(ctx context.Context, query string, args ...any) ([]Client, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (*Client, error) {
	var c Client
	if err := s.Scan(&c.ID, &c.Name, &c.AvatarURL, &c.Phone, &c.ConnectedAt, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
