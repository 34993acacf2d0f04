package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

const profileColumns = `id, username, full_name, avatar_url, online, last_seen`

// UpsertProfile inserts or replaces a profile row.
func (db *DB) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, full_name, avatar_url, online, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url,
			online = excluded.online,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		p.ID, p.Username, p.FullName, p.AvatarURL, p.Online, unixMilliPtr(p.LastSeen), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", p.ID, err)
	}
	return nil
}

// ListProfiles returns every profile ordered by username.
func (db *DB) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return out, nil
}

// GetProfile returns a profile by id, or an error wrapping domain.ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	row := db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return p, nil
}

// UpdateOnlineStatus sets the presence flag and stamps last_seen.
func (db *DB) UpdateOnlineStatus(ctx context.Context, userID string, online bool) error {
	now := time.Now()
	res, err := db.ExecContext(ctx,
		`UPDATE profiles SET online = ?, last_seen = ?, updated_at = ? WHERE id = ?`,
		online, now.UnixMilli(), now.UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %q: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// ProfileCount returns the number of profiles.
func (db *DB) ProfileCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*domain.Profile, error) {
	var (
		p        domain.Profile
		lastSeen sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.Online, &lastSeen); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := time.UnixMilli(lastSeen.Int64)
		p.LastSeen = &t
	}
	return &p, nil
}

func unixMilliPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
