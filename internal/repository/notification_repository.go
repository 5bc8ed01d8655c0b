package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchhub/internal/models"
)

const notificationColumns = `
	id, recipient_id, type, title, message, related_task_id,
	is_read, read_at, data, created_at
`

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n models.Notification) error {
	data, err := jsonParam(n.Data)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO notifications (
			id, recipient_id, type, title, message, related_task_id, is_read, data, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, FALSE, $7, $8
		)
	`
	_, err = r.pool.Exec(ctx, query, n.ID, n.Recipient, n.Type, n.Title, n.Message, n.RelatedTask, data, n.CreatedAt)
	return err
}

// ListByRecipient returns the recipient's notifications newest first. A
// non-positive limit means no limit.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	args := []any{recipient}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
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

// MarkRead flags one notification as read. Rows owned by someone else are
// reported as not found.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipient, id string, at time.Time) (models.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.pool.QueryRow(ctx, query, id, recipient, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipient, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipient string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`,
		recipient,
	).Scan(&count)
	return count, err
}

// scanNotification returns pgx.ErrNoRows unchanged so callers can map it.
func scanNotification(row pgx.Row) (models.Notification, error) {
	var (
		n    models.Notification
		data []byte
	)
	if err := row.Scan(
		&n.ID,
		&n.Recipient,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.RelatedTask,
		&n.IsRead,
		&n.ReadAt,
		&data,
		&n.CreatedAt,
	); err != nil {
		return models.Notification{}, err
	}
	if err := jsonScan(data, &n.Data); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}
