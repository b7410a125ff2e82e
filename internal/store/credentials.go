package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CredentialKey namespaces a credential name under a client id.
func CredentialKey(clientID, name string) string {
	return clientID + ":" + name
}

// PutCredential stores a namespaced credential value.
func (db *DB) PutCredential(ctx context.Context, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO auth_keys (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put credential %q: %w", key, err)
	}
	return nil
}

// GetCredential returns a credential value, or ErrNotFound.
func (db *DB) GetCredential(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM auth_keys WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// DeleteCredentialsWithPrefix removes every credential whose key starts with
// prefix. The comparison is literal, so "_" and "%" in ids are safe.
func (db *DB) DeleteCredentialsWithPrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errors.New("delete credentials: empty prefix")
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM auth_keys WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("delete credentials %q: %w", prefix, err)
	}
	return res.RowsAffected()
}
