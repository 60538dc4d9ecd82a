package repos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"agritrade/internal/domain"
)

type NotificationRepo struct{ db *sqlx.DB }

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo { return &NotificationRepo{db: db} }

func (r *NotificationRepo) Insert(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO notifications(id, user_id, kind, title, body, metadata_json, read, created_at)
	  VALUES(?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
	`, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.Metadata)
	return err
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	q := `
	  SELECT id, user_id, kind, title, body,
	         COALESCE(metadata_json,'') AS metadata_json, read, created_at
	  FROM notifications
	  WHERE user_id = ?`
	if unreadOnly {
		q += ` AND read = 0`
	}
	q += ` ORDER BY datetime(created_at) DESC LIMIT 200`

	var out []domain.Notification
	err := r.db.SelectContext(ctx, &out, q, userID)
	return out, err
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
	  UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
