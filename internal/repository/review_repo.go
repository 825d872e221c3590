package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pressroom/internal/model"
)

type ReviewRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReviewRepository(db *pgxpool.Pool, logger *zap.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:     db,
		logger: logger,
	}
}

// FindDue returns draft reviews whose scheduled time has elapsed,
// oldest first.
func (r *ReviewRepository) FindDue(ctx context.Context, limit int) ([]model.ScheduledItem, error) {
	query := `
        SELECT id, title, slug, status, scheduled_at, published_at
        FROM reviews
        WHERE status = 'DRAFT'
          AND scheduled_at IS NOT NULL
          AND scheduled_at <= NOW()
        ORDER BY scheduled_at ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ScheduledItem
	for rows.Next() {
		var item model.ScheduledItem
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Slug,
			&item.Status,
			&item.ScheduledAt,
			&item.PublishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetPublished returns one published review, nil when missing or not yet
// published.
func (r *ReviewRepository) GetPublished(ctx context.Context, id int64) (*model.ScheduledItem, error) {
	query := `
        SELECT id, title, slug, status, scheduled_at, published_at
        FROM reviews
        WHERE id = $1 AND status = 'PUBLISHED'
    `
	var item model.ScheduledItem
	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.Title,
		&item.Slug,
		&item.Status,
		&item.ScheduledAt,
		&item.PublishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// TransitionToPublished flips a review to PUBLISHED only if it is still a
// draft at write time.
func (r *ReviewRepository) TransitionToPublished(ctx context.Context, id int64, publishedAt time.Time) (int64, error) {
	query := `
        UPDATE reviews
        SET status = 'PUBLISHED', published_at = $2, scheduled_at = NULL
        WHERE id = $1 AND status = 'DRAFT'
    `
	result, err := r.db.Exec(ctx, query, id, publishedAt)
	if err != nil {
		r.logger.Error("Failed to publish review", zap.Int64("review_id", id), zap.Error(err))
		return 0, err
	}
	return result.RowsAffected(), nil
}
