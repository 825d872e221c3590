package mailer

import (
	"pressroom/internal/model"
)

// Encryptor seals plaintext credentials for storage.
type Encryptor interface {
	Encrypt(plaintext string) string
}

// SettingsPatch is a partial update to the persisted mail settings.
// Nil fields leave the existing value untouched. Credential fields carry
// plaintext and are encrypted during the merge.
type SettingsPatch struct {
	Enabled     *bool               `json:"enabled"`
	Provider    *model.MailProvider `json:"provider"`
	FromEmail   *string             `json:"from_email"`
	ReplyTo     *string             `json:"reply_to"`
	APIEndpoint *string             `json:"api_endpoint"`
	SMTPHost    *string             `json:"smtp_host"`
	SMTPPort    *int                `json:"smtp_port"`
	SMTPUser    *string             `json:"smtp_user"`

	APIKey   *string `json:"api_key"`
	SMTPPass *string `json:"smtp_pass"`

	RemoveAPIKey   bool `json:"remove_api_key"`
	RemoveSMTPPass bool `json:"remove_smtp_pass"`
}

// ApplyUpdate merges a patch into the existing settings. Pure function:
// the input is not mutated. A non-empty new credential wins over its
// remove flag when both are supplied in the same call.
func ApplyUpdate(existing *model.MailSettings, patch SettingsPatch, enc Encryptor) model.MailSettings {
	var merged model.MailSettings
	if existing != nil {
		merged = *existing
	}

	if patch.Enabled != nil {
		merged.Enabled = *patch.Enabled
	}
	if patch.Provider != nil {
		merged.Provider = *patch.Provider
	}
	if patch.FromEmail != nil {
		merged.FromEmail = *patch.FromEmail
	}
	if patch.ReplyTo != nil {
		merged.ReplyTo = *patch.ReplyTo
	}
	if patch.APIEndpoint != nil {
		merged.APIEndpoint = *patch.APIEndpoint
	}
	if patch.SMTPHost != nil {
		merged.SMTPHost = *patch.SMTPHost
	}
	if patch.SMTPPort != nil {
		merged.SMTPPort = *patch.SMTPPort
	}
	if patch.SMTPUser != nil {
		merged.SMTPUser = *patch.SMTPUser
	}

	switch {
	case patch.APIKey != nil && *patch.APIKey != "":
		merged.APIKeyEncrypted = enc.Encrypt(*patch.APIKey)
	case patch.RemoveAPIKey:
		merged.APIKeyEncrypted = ""
	}

	switch {
	case patch.SMTPPass != nil && *patch.SMTPPass != "":
		merged.SMTPPassEncrypted = enc.Encrypt(*patch.SMTPPass)
	case patch.RemoveSMTPPass:
		merged.SMTPPassEncrypted = ""
	}

	return merged
}
