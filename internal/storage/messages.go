package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

func (s *Store) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	q := s.sql.Select("id", "chat_id", "role", "content", "created_at", "status", "error").
		From("messages").
		Where(sq.Eq{"chat_id": chatID}).
		OrderBy("created_at ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt, &m.Status, &m.Error); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// AppendMessage inserts a message and refreshes the owning chat's
// updated_at in the same transaction. Returns ErrNotFound when the chat
// does not exist.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback()

	if err := s.touchChat(ctx, tx, m.ChatID); err != nil {
		return err
	}

	ins, args, err := s.sql.Insert("messages").
		Columns("id", "chat_id", "role", "content", "created_at", "status", "error").
		Values(m.ID, m.ChatID, m.Role, m.Content, m.CreatedAt.UTC(), m.Status, m.Error).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert message query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

func (s *Store) PatchMessage(ctx context.Context, chatID int64, messageID string, p MessagePatch) error {
	q := s.sql.Update("messages").Where(sq.Eq{"chat_id": chatID, "id": messageID})
	assigned := false
	if p.Content != nil {
		q = q.Set("content", *p.Content)
		assigned = true
	}
	if p.Status != nil {
		q = q.Set("status", *p.Status)
		assigned = true
	}
	if p.Error != nil {
		q = q.Set("error", *p.Error)
		assigned = true
	}
	if !assigned {
		// Nothing to apply; still report missing rows.
		return s.messageExists(ctx, chatID, messageID)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build patch message query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("patch message: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertMessage writes a message whether or not the row already exists,
// used when a stream flush lands on a message the client pre-created as
// pending. The chat's updated_at is refreshed alongside.
func (s *Store) UpsertMessage(ctx context.Context, m Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert message: %w", err)
	}
	defer tx.Rollback()

	if err := s.touchChat(ctx, tx, m.ChatID); err != nil {
		return err
	}

	ins, args, err := s.sql.Insert("messages").
		Columns("id", "chat_id", "role", "content", "created_at", "status", "error").
		Values(m.ID, m.ChatID, m.Role, m.Content, m.CreatedAt.UTC(), m.Status, m.Error).
		Suffix("ON CONFLICT(id) DO UPDATE SET content=excluded.content, status=excluded.status, error=excluded.error").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert message query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	return tx.Commit()
}

func (s *Store) touchChat(ctx context.Context, tx *sql.Tx, chatID int64) error {
	upd, args, err := s.sql.Update("chats").
		Set("updated_at", UTCNow()).
		Where(sq.Eq{"id": chatID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch chat query: %w", err)
	}
	res, err := tx.ExecContext(ctx, upd, args...)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) messageExists(ctx context.Context, chatID int64, messageID string) error {
	q := s.sql.Select("1").From("messages").Where(sq.Eq{"chat_id": chatID, "id": messageID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build message exists query: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("message exists: %w", err)
	}
	return nil
}
