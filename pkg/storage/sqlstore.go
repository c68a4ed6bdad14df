package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SQLStore implements Storage on database/sql. Queries use $N placeholders,
// which both lib/pq and modernc.org/sqlite bind positionally.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*SQLStore)

// WithClock replaces time.Now for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	s := &SQLStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	var it Item
	var url sql.NullString
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, body, item_type, status, updated_at
		FROM items WHERE id = $1`, id,
	).Scan(&it.ID, &url, &it.Title, &it.Body, &it.Type, &it.Status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	it.URL = url.String
	it.UpdatedAt = time.Unix(updated, 0)
	return &it, nil
}

// SaveItem inserts an item, or updates the existing row with the same URL.
// Items without a URL are always inserted.
func (s *SQLStore) SaveItem(ctx context.Context, it Item) (int64, error) {
	now := s.now().Unix()
	if it.Type == "" {
		it.Type = "post"
	}
	if it.Status == "" {
		it.Status = StatusPublish
	}

	var url any
	if it.URL != "" {
		url = it.URL
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO items (url, title, body, item_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (url) DO UPDATE
		SET title = EXCLUDED.title, body = EXCLUDED.body, item_type = EXCLUDED.item_type,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		RETURNING id`,
		url, it.Title, it.Body, it.Type, it.Status, now,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	slog.Debug("saved item", slog.Int64("id", id), slog.String("url", it.URL))
	return id, nil
}

func (s *SQLStore) ListPublishedIDs(ctx context.Context, types []string) ([]int64, error) {
	args := []any{StatusPublish}
	query := `SELECT id FROM items WHERE status = $1`
	if len(types) > 0 {
		query += ` AND item_type IN (` + placeholders(2, len(types)) + `)`
		args = appendStrings(args, types)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) ItemIDByURL(ctx context.Context, url string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM items WHERE url = $1`, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// FindByTitle returns published items whose title contains any of terms,
// case-insensitively, newest first.
func (s *SQLStore) FindByTitle(ctx context.Context, terms, types []string, excludeID int64, limit int) ([]Item, error) {
	var likes []string
	args := []any{StatusPublish, excludeID}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		args = append(args, "%"+escapeLike(t)+"%")
		likes = append(likes, fmt.Sprintf(`LOWER(title) LIKE $%d ESCAPE '\'`, len(args)))
	}
	if len(likes) == 0 {
		return nil, nil
	}

	query := `SELECT id, url, title, item_type FROM items WHERE status = $1 AND id <> $2 AND (` +
		strings.Join(likes, " OR ") + `)`
	if len(types) > 0 {
		query += ` AND item_type IN (` + placeholders(len(args)+1, len(types)) + `)`
		args = appendStrings(args, types)
	}
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var url sql.NullString
		if err := rows.Scan(&it.ID, &url, &it.Title, &it.Type); err != nil {
			return nil, err
		}
		it.URL = url.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// PublishedScores returns the stored visibility score of every published
// item of the given types that has one.
func (s *SQLStore) PublishedScores(ctx context.Context, types []string) ([]float64, error) {
	args := []any{MetaScore, StatusPublish}
	query := `
		SELECT m.meta_value
		FROM item_meta m
		INNER JOIN items i ON i.id = m.item_id
		WHERE m.meta_key = $1 AND i.status = $2`
	if len(types) > 0 {
		query += ` AND i.item_type IN (` + placeholders(3, len(types)) + `)`
		args = appendStrings(args, types)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v float64
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			// non-numeric values are skipped
			continue
		}
		scores = append(scores, v)
	}
	return scores, rows.Err()
}

func (s *SQLStore) GetMeta(ctx context.Context, id int64, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT meta_value FROM item_meta WHERE item_id = $1 AND meta_key = $2`, id, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode meta %s of item %d: %w", key, id, err)
	}
	return true, nil
}

func (s *SQLStore) SetMeta(ctx context.Context, id int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO item_meta (item_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
		id, key, string(raw),
	)
	return err
}

func (s *SQLStore) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM item_meta WHERE item_id = $1 AND meta_key = $2`, id, key)
	return err
}

func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ps, ", ")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
