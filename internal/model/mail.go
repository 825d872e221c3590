package model

import "time"

type MailProvider string

const (
	ProviderAPI  MailProvider = "http-api"
	ProviderSMTP MailProvider = "smtp"
)

// MailSettings is the persisted operator-facing mail configuration.
// Credentials are stored only in encrypted form.
type MailSettings struct {
	Enabled          bool
	Provider         MailProvider
	FromEmail        string
	ReplyTo          string
	APIEndpoint      string
	APIKeyEncrypted  string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassEncrypted string
	UpdatedAt        time.Time
}

// MailSettingsView is the serializable projection of MailSettings.
// It never carries plaintext or ciphertext, only presence flags.
type MailSettingsView struct {
	Enabled     bool         `json:"enabled"`
	Provider    MailProvider `json:"provider"`
	FromEmail   string       `json:"from_email"`
	ReplyTo     string       `json:"reply_to"`
	APIEndpoint string       `json:"api_endpoint,omitempty"`
	SMTPHost    string       `json:"smtp_host,omitempty"`
	SMTPPort    int          `json:"smtp_port,omitempty"`
	SMTPUser    string       `json:"smtp_user,omitempty"`
	HasAPIKey   bool         `json:"has_api_key"`
	HasSMTPPass bool         `json:"has_smtp_pass"`
}

// View projects the settings into their credential-free form.
func (s MailSettings) View() MailSettingsView {
	return MailSettingsView{
		Enabled:     s.Enabled,
		Provider:    s.Provider,
		FromEmail:   s.FromEmail,
		ReplyTo:     s.ReplyTo,
		APIEndpoint: s.APIEndpoint,
		SMTPHost:    s.SMTPHost,
		SMTPPort:    s.SMTPPort,
		SMTPUser:    s.SMTPUser,
		HasAPIKey:   s.APIKeyEncrypted != "",
		HasSMTPPass: s.SMTPPassEncrypted != "",
	}
}

// MailRuntime is the decrypted, ready-to-send provider configuration.
// Exactly two variants exist: APIRuntime and SMTPRuntime.
type MailRuntime interface {
	Transport() MailProvider
	Sender() (fromEmail, replyTo string)
}

// APIRuntime sends through an HTTP JSON mail API.
type APIRuntime struct {
	Endpoint  string
	APIKey    string
	FromEmail string
	ReplyTo   string
}

func (r *APIRuntime) Transport() MailProvider  { return ProviderAPI }
func (r *APIRuntime) Sender() (string, string) { return r.FromEmail, r.ReplyTo }

// SMTPRuntime sends through an authenticated SMTP session.
type SMTPRuntime struct {
	Host      string
	Port      int
	User      string
	Pass      string
	FromEmail string
	ReplyTo   string
}

func (r *SMTPRuntime) Transport() MailProvider  { return ProviderSMTP }
func (r *SMTPRuntime) Sender() (string, string) { return r.FromEmail, r.ReplyTo }

// EmailMessage is a single outbound email.
type EmailMessage struct {
	To       string
	Subject  string
	HTML     string
	Type     string
	UserID   *int64
	MemberID *int64
	Refs     EntityRefs
}
