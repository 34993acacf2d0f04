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

const messageColumns = `id, client_id, sender_id, receiver_id, content, created_at`

// InsertMessage appends m and returns the stored row. The store assigns id and
// created_at when they are empty. A repeated client_id returns the row already
// stored for it instead of inserting a second copy.
func (db *DB) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: begin tx: %v", domain.ErrMessageStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if m.ClientID != "" {
		existing, err := scanMessage(tx.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE client_id = ?`, m.ClientID))
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrMessageStoreUnavailable, err)
		}
	}

	row := *m
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.CreatedAt = time.UnixMilli(row.CreatedAt.UnixMilli())

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, row.ClientID, row.SenderID, row.ReceiverID, row.Content, row.CreatedAt.UnixMilli()); err != nil {
		return nil, false, fmt.Errorf("%w: insert: %v", domain.ErrMessageStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: commit: %v", domain.ErrMessageStoreUnavailable, err)
	}
	return &row, true, nil
}

// QueryConversation returns all messages exchanged between a and b in either
// direction, ascending by created_at.
func (db *DB) QueryConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMessageStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMessageStoreUnavailable, err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMessageStoreUnavailable, err)
	}
	return msgs, nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func scanMessage(s scanner) (*domain.Message, error) {
	var (
		m         domain.Message
		createdAt int64
	)
	if err := s.Scan(&m.ID, &m.ClientID, &m.SenderID, &m.ReceiverID, &m.Content, &createdAt); err != nil {
		return nil, err
	}
	m.CreatedAt = time.UnixMilli(createdAt)
	return &m, nil
}
