package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pressroom/internal/model"
)

type MailSettingsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMailSettingsRepository(db *pgxpool.Pool, logger *zap.Logger) *MailSettingsRepository {
	return &MailSettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get loads the single persisted mail settings row. Returns (nil, nil)
// when no settings were ever saved.
func (r *MailSettingsRepository) Get(ctx context.Context) (*model.MailSettings, error) {
	query := `
        SELECT enabled, provider, from_email, reply_to,
               COALESCE(api_endpoint, ''), COALESCE(api_key_encrypted, ''),
               COALESCE(smtp_host, ''), COALESCE(smtp_port, 0),
               COALESCE(smtp_user, ''), COALESCE(smtp_pass_encrypted, ''),
               updated_at
        FROM mail_settings
        WHERE id = 1
    `
	var s model.MailSettings
	err := r.db.QueryRow(ctx, query).Scan(
		&s.Enabled,
		&s.Provider,
		&s.FromEmail,
		&s.ReplyTo,
		&s.APIEndpoint,
		&s.APIKeyEncrypted,
		&s.SMTPHost,
		&s.SMTPPort,
		&s.SMTPUser,
		&s.SMTPPassEncrypted,
		&s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save upserts the single mail settings row.
func (r *MailSettingsRepository) Save(ctx context.Context, s *model.MailSettings) error {
	query := `
        INSERT INTO mail_settings
            (id, enabled, provider, from_email, reply_to, api_endpoint,
             api_key_encrypted, smtp_host, smtp_port, smtp_user,
             smtp_pass_encrypted, updated_at)
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
        ON CONFLICT (id) DO UPDATE SET
            enabled = EXCLUDED.enabled,
            provider = EXCLUDED.provider,
            from_email = EXCLUDED.from_email,
            reply_to = EXCLUDED.reply_to,
            api_endpoint = EXCLUDED.api_endpoint,
            api_key_encrypted = EXCLUDED.api_key_encrypted,
            smtp_host = EXCLUDED.smtp_host,
            smtp_port = EXCLUDED.smtp_port,
            smtp_user = EXCLUDED.smtp_user,
            smtp_pass_encrypted = EXCLUDED.smtp_pass_encrypted,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.db.Exec(ctx, query,
		s.Enabled,
		s.Provider,
		s.FromEmail,
		s.ReplyTo,
		s.APIEndpoint,
		s.APIKeyEncrypted,
		s.SMTPHost,
		s.SMTPPort,
		s.SMTPUser,
		s.SMTPPassEncrypted,
	)
	if err != nil {
		r.logger.Error("Failed to save mail settings", zap.Error(err))
		return err
	}
	return nil
}
