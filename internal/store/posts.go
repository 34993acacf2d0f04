package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matheus3301/detox/internal/domain"
)

const postColumns = `id, type, title, content, image, created_at, likes, comments`

var _ domain.PostStore = (*DB)(nil)

// ListPosts returns every post, newest first.
func (db *DB) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPostStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPostStoreUnavailable, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPostStoreUnavailable, err)
	}
	return out, nil
}

// GetPost returns a post by id, or an error wrapping domain.ErrNotFound.
func (db *DB) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	p, err := scanPost(db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPostStoreUnavailable, err)
	}
	return p, nil
}

// AddPost stores p, assigning id and created_at when they are empty.
func (db *DB) AddPost(ctx context.Context, p domain.Post) (*domain.Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = time.UnixMilli(p.CreatedAt.UnixMilli())

	if _, err := db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), p.Title, p.Content, p.Image, p.CreatedAt.UnixMilli(), p.Likes, p.Comments); err != nil {
		return nil, fmt.Errorf("%w: insert post: %v", domain.ErrPostStoreUnavailable, err)
	}
	return &p, nil
}

// UpdatePost rewrites type, title, content and image. Date and counters stay.
func (db *DB) UpdatePost(ctx context.Context, p domain.Post) (*domain.Post, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE posts SET type = ?, title = ?, content = ?, image = ? WHERE id = ?`,
		string(p.Type), p.Title, p.Content, p.Image, p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: update post: %v", domain.ErrPostStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("post %q: %w", p.ID, domain.ErrNotFound)
	}
	return db.GetPost(ctx, p.ID)
}

// DeletePost removes the post with id.
func (db *DB) DeletePost(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete post: %v", domain.ErrPostStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("post %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// LikePost increments the like counter atomically.
func (db *DB) LikePost(ctx context.Context, id string) (*domain.Post, error) {
	res, err := db.ExecContext(ctx, `UPDATE posts SET likes = likes + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: like post: %v", domain.ErrPostStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("post %q: %w", id, domain.ErrNotFound)
	}
	return db.GetPost(ctx, id)
}

func scanPost(s scanner) (*domain.Post, error) {
	var (
		p         domain.Post
		kind      string
		createdAt int64
	)
	if err := s.Scan(&p.ID, &kind, &p.Title, &p.Content, &p.Image, &createdAt, &p.Likes, &p.Comments); err != nil {
		return nil, err
	}
	p.Type = domain.PostType(kind)
	p.CreatedAt = time.UnixMilli(createdAt)
	return &p, nil
}
