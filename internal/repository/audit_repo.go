package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one append-only audit entry.
func (r *AuditRepository) Append(ctx context.Context, action, entityType string, entityID int64, summary string, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	query := `
        INSERT INTO audit_log (action, entity_type, entity_id, summary, details, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
    `
	_, err := r.db.Exec(ctx, query, action, entityType, entityID, summary, detailsJSON)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("action", action),
			zap.Int64("entity_id", entityID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ExistsFor reports whether an entry with this exact (action, entityType,
// entityID) triple was already appended.
func (r *AuditRepository) ExistsFor(ctx context.Context, action, entityType string, entityID int64) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM audit_log
            WHERE action = $1 AND entity_type = $2 AND entity_id = $3
        )
    `
	var exists bool
	err := r.db.QueryRow(ctx, query, action, entityType, entityID).Scan(&exists)
	return exists, err
}
