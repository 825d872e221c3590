package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pressroom/internal/model"
)

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// InsertPending writes a new notification record in PENDING state and
// returns its id.
func (r *NotificationRepository) InsertPending(ctx context.Context, n *model.Notification) (int64, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
        INSERT INTO notifications
            (type, channel, status, user_id, member_id, email, subject,
             payload, post_id, review_id, comment_id, is_read)
        VALUES ($1, $2, 'PENDING', $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
        RETURNING id
    `
	var id int64
	err = r.db.QueryRow(ctx, query,
		n.Type,
		n.Channel,
		n.UserID,
		n.MemberID,
		nullIfEmpty(n.Email),
		n.Subject,
		payload,
		n.Refs.PostID,
		n.Refs.ReviewID,
		n.Refs.CommentID,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// MarkSent moves a PENDING record to SENT. Terminal states are never
// overwritten.
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
        UPDATE notifications
        SET status = 'SENT', sent_at = $2
        WHERE id = $1 AND status = 'PENDING'
    `
	_, err := r.db.Exec(ctx, query, id, sentAt)
	return err
}

// MarkFailed moves a PENDING record to FAILED with a human-readable reason.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
        UPDATE notifications
        SET status = 'FAILED', error_message = $2
        WHERE id = $1 AND status = 'PENDING'
    `
	_, err := r.db.Exec(ctx, query, id, reason)
	return err
}

// MarkSkipped moves a PENDING record to SKIPPED.
func (r *NotificationRepository) MarkSkipped(ctx context.Context, id int64, reason string) error {
	query := `
        UPDATE notifications
        SET status = 'SKIPPED', error_message = $2
        WHERE id = $1 AND status = 'PENDING'
    `
	_, err := r.db.Exec(ctx, query, id, reason)
	return err
}

// DuplicateFilter narrows the duplicate lookup. Since and Refs are both
// optional and independent.
type DuplicateFilter struct {
	UserID   *int64
	MemberID *int64
	Email    string
	Channel  model.NotificationChannel
	Type     string
	Subject  string
	Since    *time.Time
	Refs     model.EntityRefs
}

// FindDuplicate returns the id of an existing record matching the filter,
// if any.
func (r *NotificationRepository) FindDuplicate(ctx context.Context, f DuplicateFilter) (int64, bool, error) {
	query := `
        SELECT id FROM notifications
        WHERE channel = $1 AND type = $2 AND subject = $3
    `
	args := []any{f.Channel, f.Type, f.Subject}

	addArg := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}

	if f.UserID != nil {
		addArg("user_id", *f.UserID)
	}
	if f.MemberID != nil {
		addArg("member_id", *f.MemberID)
	}
	if f.Email != "" {
		addArg("email", f.Email)
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Refs.PostID != nil {
		addArg("post_id", *f.Refs.PostID)
	}
	if f.Refs.ReviewID != nil {
		addArg("review_id", *f.Refs.ReviewID)
	}
	if f.Refs.CommentID != nil {
		addArg("comment_id", *f.Refs.CommentID)
	}

	query += " ORDER BY id DESC LIMIT 1"

	var id int64
	err := r.db.QueryRow(ctx, query, args...).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// UnreadCount returns the number of unread in-app notifications for a user.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	query := `
        SELECT COUNT(*) FROM notifications
        WHERE user_id = $1 AND channel = 'IN_APP' AND is_read = FALSE
    `
	var count int
	err := r.db.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}

// ListRecent returns the newest in-app notifications for a user.
func (r *NotificationRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	query := `
        SELECT id, type, channel, status, user_id, member_id,
               COALESCE(email, ''), subject, payload,
               post_id, review_id, comment_id,
               is_read, created_at, sent_at, COALESCE(error_message, '')
        FROM notifications
        WHERE user_id = $1 AND channel = 'IN_APP'
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		var n model.Notification
		var payload []byte
		if err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Channel,
			&n.Status,
			&n.UserID,
			&n.MemberID,
			&n.Email,
			&n.Subject,
			&payload,
			&n.Refs.PostID,
			&n.Refs.ReviewID,
			&n.Refs.CommentID,
			&n.IsRead,
			&n.CreatedAt,
			&n.SentAt,
			&n.ErrorMessage,
		); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				r.logger.Warn("Skipping malformed notification payload",
					zap.Int64("id", n.ID),
					zap.Error(err),
				)
			}
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkRead marks one notification as read, scoped to its owner.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, id, userID)
	return err
}

// MarkAllRead marks every unread in-app notification of a user as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	query := `
        UPDATE notifications SET is_read = TRUE
        WHERE user_id = $1 AND channel = 'IN_APP' AND is_read = FALSE
    `
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
