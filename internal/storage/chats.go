package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) CreateChat(ctx context.Context, title string) (Chat, error) {
	now := UTCNow()
	q := s.sql.Insert("chats").
		Columns("title", "created_at", "updated_at").
		Values(title, now, now).
		Suffix("RETURNING id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Chat{}, fmt.Errorf("build create chat query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return Chat{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	q := s.sql.Select("id", "title", "created_at", "updated_at").
		From("chats").
		Where(sq.Eq{"id": chatID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Chat{}, fmt.Errorf("build get chat query: %w", err)
	}

	var c Chat
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chat{}, ErrNotFound
		}
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	q := s.sql.Select("id", "title", "created_at", "updated_at").
		From("chats").
		OrderBy("updated_at DESC", "id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chats query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := make([]Chat, 0)
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return out, nil
}

// PatchChat applies the non-nil fields and refreshes updated_at.
func (s *Store) PatchChat(ctx context.Context, chatID int64, title *string) error {
	q := s.sql.Update("chats").
		Set("updated_at", UTCNow()).
		Where(sq.Eq{"id": chatID})
	if title != nil {
		q = q.Set("title", *title)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build patch chat query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("patch chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChat removes a chat and all of its messages in one transaction.
// Deleting an absent chat is a no-op.
func (s *Store) DeleteChat(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete chat: %w", err)
	}
	defer tx.Rollback()

	delMsgs, args, err := s.sql.Delete("messages").Where(sq.Eq{"chat_id": chatID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete chat messages query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delMsgs, args...); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}

	delChat, args, err := s.sql.Delete("chats").Where(sq.Eq{"id": chatID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete chat query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delChat, args...); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	return tx.Commit()
}
