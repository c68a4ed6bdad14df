package storage

// Transient expiry is stored as Unix milliseconds so short leases keep their
// length.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func (s *SQLStore) SetTransient(ctx context.Context, name, value string, ttl time.Duration) error {
	expires := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transients (name, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		name, value, expires,
	)
	return err
}

func (s *SQLStore) GetTransient(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM transients WHERE name = $1 AND expires_at > $2`,
		name, s.now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// TakeTransient deletes a live transient and reports whether it existed.
// Concurrent callers race on the DELETE, so at most one sees true.
func (s *SQLStore) TakeTransient(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transients WHERE name = $1 AND expires_at > $2`,
		name, s.now().UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) DeleteTransient(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE name = $1`, name)
	return err
}

// AcquireLock claims name for owner for ttl when it is free or its holder's
// lease has expired. The upsert only overwrites expired rows, so exactly one
// contender gets a row affected.
func (s *SQLStore) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transients (name, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE transients.expires_at <= $4`,
		name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RenewLock extends the lease if owner still holds it.
func (s *SQLStore) RenewLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transients SET expires_at = $1
		WHERE name = $2 AND value = $3 AND expires_at > $4`,
		now.Add(ttl).UnixMilli(), name, owner, now.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE name = $1 AND value = $2`, name, owner)
	return err
}

// PurgeExpired removes transients whose lease has run out.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE expires_at <= $1`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) GetOption(ctx context.Context, name string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE name = $1`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) SetOption(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO options (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		name, string(raw),
	)
	return err
}
