package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

const notificationColumns = `
	id, recipient_id, type, title, message, related_task_id,
	is_read, read_at, data, created_at
`

type NotificationStore struct {
	db *sqlx.DB
}

func (s *NotificationStore) Create(ctx context.Context, n models.Notification) error {
	var data interface{}
	if n.Data != nil {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshaling notification data: %w", err)
		}
		data = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, message, related_task_id, is_read, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		n.ID, n.Recipient, string(n.Type), n.Title, n.Message, n.RelatedTask, data, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE recipient_id = ?"
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, recipient)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, recipient, id string, at time.Time) (models.Notification, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = 1, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND recipient_id = ?`,
		at.UTC(), id, recipient,
	)
	if err != nil {
		return models.Notification{}, fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return models.Notification{}, repository.ErrNotificationNotFound
	}

	n, err := scanNotification(s.db.QueryRowxContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, repository.ErrNotificationNotFound
	}
	return n, err
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE recipient_id = ? AND is_read = 0",
		at.UTC(), recipient,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications as read: %w", err)
	}
	return result.RowsAffected()
}

func (s *NotificationStore) CountUnread(ctx context.Context, recipient string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0", recipient)
	return count, err
}

func scanNotification(row scanner) (models.Notification, error) {
	var (
		n    models.Notification
		data sql.NullString
	)
	if err := row.Scan(
		&n.ID, &n.Recipient, &n.Type, &n.Title, &n.Message, &n.RelatedTask,
		&n.IsRead, &n.ReadAt, &data, &n.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Notification{}, err
		}
		return models.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
			return models.Notification{}, fmt.Errorf("unmarshaling notification data: %w", err)
		}
	}
	return n, nil
}
