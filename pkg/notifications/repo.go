package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	ListByUser(ctx context.Context, userUUID string, unreadOnly bool, limit, offset int) ([]Notification, int64, error)
	MarkRead(ctx context.Context, userUUID string, ids []int64) (int64, error)
	MarkAllRead(ctx context.Context, userUUID string) (int64, error)
	UnreadCount(ctx context.Context, userUUID string) (int64, error)
}

type postgresNotificationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &postgresNotificationRepository{pool: pool}
}

const notificationColumns = `id, user_uuid, kind, title, body, link, is_read, created_at`

func (r *postgresNotificationRepository) Create(ctx context.Context, n Notification) (Notification, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO notifications (user_uuid, kind, title, body, link, created_at)
              VALUES ($1, $2, $3, $4, $5, NOW())
              RETURNING ` + notificationColumns

	var out Notification
	err := r.pool.QueryRow(ctxTimeout, query, n.UserUUID, n.Kind, n.Title, n.Body, n.Link).
		Scan(&out.ID, &out.UserUUID, &out.Kind, &out.Title, &out.Body, &out.Link, &out.Read, &out.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return out, nil
}

func (r *postgresNotificationRepository) ListByUser(ctx context.Context, userUUID string, unreadOnly bool, limit, offset int) ([]Notification, int64, error) {
	where := "WHERE user_uuid = $1"
	if unreadOnly {
		where += " AND is_read = FALSE"
	}

	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications `+where+`
              ORDER BY created_at DESC, id DESC
              LIMIT $2 OFFSET $3`, userUUID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserUUID, &n.Kind, &n.Title, &n.Body, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications "+where, userUUID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkRead only touches rows owned by userUUID and returns how many changed.
func (r *postgresNotificationRepository) MarkRead(ctx context.Context, userUUID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE
              WHERE user_uuid = $1 AND id = ANY($2) AND is_read = FALSE`, userUUID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, userUUID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, "UPDATE notifications SET is_read = TRUE WHERE user_uuid = $1 AND is_read = FALSE", userUUID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresNotificationRepository) UnreadCount(ctx context.Context, userUUID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE user_uuid = $1 AND is_read = FALSE", userUUID).Scan(&n)
	return n, err
}
