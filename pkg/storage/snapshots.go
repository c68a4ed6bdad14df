package storage

import (
	"context"
	"database/sql"
	"time"
)

func (s *SQLStore) InsertSnapshot(ctx context.Context, snap SiteSnapshot) (int64, error) {
	created := snap.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var avg any
	if snap.AvgScore != nil {
		avg = *snap.AvgScore
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO site_snapshots (snapshot_date, avg_score, scanned_count, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		snap.Date, avg, snap.ScannedCount, created.Unix(),
	).Scan(&id)
	return id, err
}

// RecentSnapshots returns snapshots newest first. A non-positive limit
// returns all rows.
func (s *SQLStore) RecentSnapshots(ctx context.Context, limit int) ([]SiteSnapshot, error) {
	query := `
		SELECT id, snapshot_date, avg_score, scanned_count, created_at
		FROM site_snapshots
		ORDER BY snapshot_date DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []SiteSnapshot
	for rows.Next() {
		var snap SiteSnapshot
		var avg sql.NullFloat64
		var created int64
		if err := rows.Scan(&snap.ID, &snap.Date, &avg, &snap.ScannedCount, &created); err != nil {
			return nil, err
		}
		if avg.Valid {
			v := avg.Float64
			snap.AvgScore = &v
		}
		snap.CreatedAt = time.Unix(created, 0)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
