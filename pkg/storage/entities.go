package storage

import (
	"context"
	"regexp"
	"strings"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases name and collapses every run of other characters to '-'.
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// ReplaceItemEntities makes entities the full set linked to itemID. Entities
// are shared across items by slug and type; links keep their first_seen.
func (s *SQLStore) ReplaceItemEntities(ctx context.Context, itemID int64, entities []Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().Unix()
	var keep []any
	for _, e := range entities {
		slug := Slug(e.Name)
		if slug == "" {
			continue
		}
		typ := e.Type
		if typ == "" {
			typ = "other"
		}
		role := e.Role
		if role == "" {
			role = "mentioned"
		}

		var entityID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO entities (name, slug, entity_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (slug, entity_type) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
			RETURNING id`,
			strings.TrimSpace(e.Name), slug, typ, now,
		).Scan(&entityID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_items (entity_id, item_id, role, confidence, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (entity_id, item_id) DO UPDATE
			SET role = EXCLUDED.role, confidence = EXCLUDED.confidence, last_seen = EXCLUDED.last_seen`,
			entityID, itemID, role, e.Confidence, now,
		)
		if err != nil {
			return err
		}
		keep = append(keep, entityID)
	}

	query := `DELETE FROM entity_items WHERE item_id = $1`
	args := []any{itemID}
	if len(keep) > 0 {
		query += ` AND entity_id NOT IN (` + placeholders(2, len(keep)) + `)`
		args = append(args, keep...)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) EntitiesForItem(ctx context.Context, itemID int64) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.name, e.entity_type, ei.role, ei.confidence
		FROM entity_items ei
		INNER JOIN entities e ON e.id = ei.entity_id
		WHERE ei.item_id = $1
		ORDER BY ei.confidence DESC, e.name ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Name, &e.Type, &e.Role, &e.Confidence); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
