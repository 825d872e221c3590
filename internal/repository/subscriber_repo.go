package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type SubscriberRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSubscriberRepository(db *pgxpool.Pool, logger *zap.Logger) *SubscriberRepository {
	return &SubscriberRepository{
		db:     db,
		logger: logger,
	}
}

// ListConfirmedEmails returns confirmed subscriber addresses, lower-cased
// and deduplicated, capped at limit to bound fan-out size.
func (r *SubscriberRepository) ListConfirmedEmails(ctx context.Context, limit int) ([]string, error) {
	query := `
        SELECT DISTINCT LOWER(email)
        FROM subscribers
        WHERE confirmed = TRUE
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
